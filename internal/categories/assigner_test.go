package categories

import (
	"context"
	"errors"
	"testing"

	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/graph"
)

// fakeDirectory is an in-memory directory and device-management backend.
type fakeDirectory struct {
	groups     map[string][]graph.Group // display name -> matches
	members    map[string][]graph.User  // group id -> user members
	users      map[string]graph.User    // user id -> user
	devices    map[string][]graph.ManagedDevice // upn -> devices
	categories []graph.DeviceCategory

	assigned  map[string]string // device id -> category id
	assignErr map[string]error  // device id -> forced failure
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		groups:    make(map[string][]graph.Group),
		members:   make(map[string][]graph.User),
		users:     make(map[string]graph.User),
		devices:   make(map[string][]graph.ManagedDevice),
		assigned:  make(map[string]string),
		assignErr: make(map[string]error),
	}
}

func (f *fakeDirectory) GroupByDisplayName(_ context.Context, name string) (*graph.Group, int, error) {
	matches := f.groups[name]
	if len(matches) == 0 {
		return nil, 0, &graph.NotFoundError{Resource: "group", Key: name}
	}
	return &matches[0], len(matches), nil
}

func (f *fakeDirectory) ListGroupMembers(_ context.Context, groupID string) ([]graph.User, error) {
	return f.members[groupID], nil
}

func (f *fakeDirectory) UserByID(_ context.Context, id string) (*graph.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, &graph.NotFoundError{Resource: "user", Key: id}
	}
	return &u, nil
}

func (f *fakeDirectory) ManagedDevicesByUPN(_ context.Context, upn string) ([]graph.ManagedDevice, error) {
	return f.devices[upn], nil
}

func (f *fakeDirectory) DeviceCategoryByDisplayName(_ context.Context, name string) (*graph.DeviceCategory, error) {
	for i := range f.categories {
		if f.categories[i].DisplayName == name {
			return &f.categories[i], nil
		}
	}
	return nil, &graph.NotFoundError{Resource: "device category", Key: name}
}

func (f *fakeDirectory) AssignDeviceCategory(_ context.Context, deviceID, categoryID string) error {
	if err := f.assignErr[deviceID]; err != nil {
		return err
	}
	f.assigned[deviceID] = categoryID
	return nil
}

func (f *fakeDirectory) ManagedDevice(_ context.Context, deviceID string) (*graph.ManagedDevice, error) {
	catID, ok := f.assigned[deviceID]
	if !ok {
		return &graph.ManagedDevice{ID: deviceID}, nil
	}
	for _, c := range f.categories {
		if c.ID == catID {
			return &graph.ManagedDevice{ID: deviceID, DeviceCategoryDisplayName: c.DisplayName}, nil
		}
	}
	return &graph.ManagedDevice{ID: deviceID}, nil
}

func TestAssignerAssignsAndVerifiesCategory(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["AZR-S-All Chicago Users"] = []graph.Group{{ID: "g1", DisplayName: "AZR-S-All Chicago Users"}}
	dir.members["g1"] = []graph.User{{ID: "u1", UserPrincipalName: "alice@corp.com"}}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{{ID: "dev1", DeviceName: "CHI-LT-001", UserPrincipalName: "alice@corp.com"}}
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "AZR-S-All Chicago Users", Category: "CHI Device"}},
	}
	sum := assigner.Run(context.Background())

	if dir.assigned["dev1"] != "c1" {
		t.Fatalf("device category = %q, want c1", dir.assigned["dev1"])
	}
	if sum.DevicesUpdated != 1 {
		t.Fatalf("DevicesUpdated = %d, want 1", sum.DevicesUpdated)
	}
	if sum.GroupsProcessed != 1 {
		t.Fatalf("GroupsProcessed = %d, want 1", sum.GroupsProcessed)
	}
}

func TestAssignerSkipsMissingGroup(t *testing.T) {
	dir := newFakeDirectory()
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Nonexistent", Category: "CHI Device"}},
	}
	sum := assigner.Run(context.Background())

	if sum.GroupsSkipped != 1 {
		t.Fatalf("GroupsSkipped = %d, want 1", sum.GroupsSkipped)
	}
	if len(dir.assigned) != 0 {
		t.Fatalf("assigned = %v, want none", dir.assigned)
	}
}

func TestAssignerSkipsGroupWhenCategoryMissing(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["Chicago"] = []graph.Group{{ID: "g1", DisplayName: "Chicago"}}
	dir.members["g1"] = []graph.User{{ID: "u1", UserPrincipalName: "alice@corp.com"}}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{{ID: "dev1"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Chicago", Category: "Missing Category"}},
	}
	sum := assigner.Run(context.Background())

	if sum.GroupsSkipped != 1 {
		t.Fatalf("GroupsSkipped = %d, want 1", sum.GroupsSkipped)
	}
	if len(dir.assigned) != 0 {
		t.Fatalf("assigned = %v, want none", dir.assigned)
	}
}

func TestAssignerUsesFirstMatchForAmbiguousGroup(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["Dup"] = []graph.Group{
		{ID: "g1", DisplayName: "Dup"},
		{ID: "g2", DisplayName: "Dup"},
	}
	dir.members["g1"] = []graph.User{{ID: "u1", UserPrincipalName: "alice@corp.com"}}
	dir.members["g2"] = []graph.User{{ID: "u2", UserPrincipalName: "bob@corp.com"}}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{{ID: "dev1"}}
	dir.devices["bob@corp.com"] = []graph.ManagedDevice{{ID: "dev2"}}
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Dup", Category: "CHI Device"}},
	}
	assigner.Run(context.Background())

	if _, ok := dir.assigned["dev1"]; !ok {
		t.Fatal("first match's member device was not assigned")
	}
	if _, ok := dir.assigned["dev2"]; ok {
		t.Fatal("second match's member device was assigned")
	}
}

func TestAssignerResolvesUPNForBareMembers(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["Chicago"] = []graph.Group{{ID: "g1", DisplayName: "Chicago"}}
	dir.members["g1"] = []graph.User{{ID: "u1"}} // no UPN in member payload
	dir.users["u1"] = graph.User{ID: "u1", UserPrincipalName: "alice@corp.com"}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{{ID: "dev1"}}
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Chicago", Category: "CHI Device"}},
	}
	assigner.Run(context.Background())

	if dir.assigned["dev1"] != "c1" {
		t.Fatalf("device category = %q, want c1", dir.assigned["dev1"])
	}
}

func TestAssignerContainsPerDeviceFailures(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["Chicago"] = []graph.Group{{ID: "g1", DisplayName: "Chicago"}}
	dir.members["g1"] = []graph.User{{ID: "u1", UserPrincipalName: "alice@corp.com"}}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{
		{ID: "dev1", DeviceName: "broken"},
		{ID: "dev2", DeviceName: "healthy"},
	}
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}
	dir.assignErr["dev1"] = errors.New("http 503")

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Chicago", Category: "CHI Device"}},
	}
	sum := assigner.Run(context.Background())

	if sum.DevicesFailed != 1 {
		t.Fatalf("DevicesFailed = %d, want 1", sum.DevicesFailed)
	}
	if dir.assigned["dev2"] != "c1" {
		t.Fatalf("healthy device not assigned after failure on sibling: %v", dir.assigned)
	}
}

func TestAssignerSkipsDeviceAlreadyInCategory(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["Chicago"] = []graph.Group{{ID: "g1", DisplayName: "Chicago"}}
	dir.members["g1"] = []graph.User{{ID: "u1", UserPrincipalName: "alice@corp.com"}}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{
		{ID: "dev1", DeviceCategoryDisplayName: "CHI Device"},
	}
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Chicago", Category: "CHI Device"}},
	}
	sum := assigner.Run(context.Background())

	if len(dir.assigned) != 0 {
		t.Fatalf("assigned = %v, want none", dir.assigned)
	}
	if sum.DevicesUpdated != 0 {
		t.Fatalf("DevicesUpdated = %d, want 0", sum.DevicesUpdated)
	}
}

func TestAssignerDryRunAssignsNothing(t *testing.T) {
	dir := newFakeDirectory()
	dir.groups["Chicago"] = []graph.Group{{ID: "g1", DisplayName: "Chicago"}}
	dir.members["g1"] = []graph.User{{ID: "u1", UserPrincipalName: "alice@corp.com"}}
	dir.devices["alice@corp.com"] = []graph.ManagedDevice{{ID: "dev1"}}
	dir.categories = []graph.DeviceCategory{{ID: "c1", DisplayName: "CHI Device"}}

	assigner := &Assigner{
		Client: dir,
		Rules:  []config.CategoryRule{{Group: "Chicago", Category: "CHI Device"}},
		DryRun: true,
	}
	assigner.Run(context.Background())

	if len(dir.assigned) != 0 {
		t.Fatalf("dry run assigned: %v", dir.assigned)
	}
}
