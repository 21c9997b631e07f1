package drivemap

import (
	"testing"

	"github.com/fleetline/agent/internal/config"
)

// fakeBackend records reconciliation calls against an in-memory drive table.
type fakeBackend struct {
	drives  []DriveState
	created []Mapping
	removed []string
	marked  bool

	createErr error
}

func (f *fakeBackend) CurrentDrives() ([]DriveState, error) {
	return f.drives, nil
}

func (f *fakeBackend) Create(m Mapping) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, m)
	f.drives = append(f.drives, DriveState{Letter: m.DriveLetter, Path: m.Path, Network: true})
	return nil
}

func (f *fakeBackend) Remove(letter string) error {
	f.removed = append(f.removed, letter)
	kept := f.drives[:0]
	for _, d := range f.drives {
		if d.Letter != letter {
			kept = append(kept, d)
		}
	}
	f.drives = kept
	return nil
}

func (f *fakeBackend) MarkPersistent() error {
	f.marked = true
	return nil
}

func TestMapperCreatesDriveWhenUserIsInFilterGroup(t *testing.T) {
	backend := &fakeBackend{}
	mapper := &Mapper{
		Backend:     backend,
		Records:     []config.DriveMappingRecord{{ID: 1, Path: `\\srv\share`, DriveLetter: "X", GroupFilter: "Finance"}},
		Username:    "alice",
		Memberships: []string{"Finance"},
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(backend.created) != 1 {
		t.Fatalf("got %d creates, want 1", len(backend.created))
	}
	if backend.created[0].DriveLetter != "X" || backend.created[0].Path != `\\srv\share` {
		t.Fatalf("created %+v, want X -> \\\\srv\\share", backend.created[0])
	}
	if !backend.marked {
		t.Fatal("MarkPersistent was not called")
	}
}

func TestMapperExcludesMappingWhenUserNotInFilterGroup(t *testing.T) {
	backend := &fakeBackend{}
	mapper := &Mapper{
		Backend:     backend,
		Records:     []config.DriveMappingRecord{{ID: 1, Path: `\\srv\share`, DriveLetter: "X", GroupFilter: "Finance"}},
		Username:    "bob",
		Memberships: []string{"Engineering"},
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(backend.created) != 0 {
		t.Fatalf("got %d creates, want 0", len(backend.created))
	}
	if len(backend.removed) != 0 {
		t.Fatalf("got %d removes, want 0", len(backend.removed))
	}
}

func TestMapperSecondRunIsNoOp(t *testing.T) {
	records := []config.DriveMappingRecord{
		{ID: 1, Path: `\\srv\share`, DriveLetter: "X"},
		{ID: 2, Path: `\\srv\data`, DriveLetter: "Y"},
	}
	backend := &fakeBackend{}
	mapper := &Mapper{Backend: backend, Records: records, Username: "alice"}

	if err := mapper.Run(); err != nil {
		t.Fatalf("first Run() returned error: %v", err)
	}
	if len(backend.created) != 2 {
		t.Fatalf("first run: got %d creates, want 2", len(backend.created))
	}

	backend.created = nil
	backend.removed = nil
	if err := mapper.Run(); err != nil {
		t.Fatalf("second Run() returned error: %v", err)
	}
	if len(backend.created) != 0 || len(backend.removed) != 0 {
		t.Fatalf("second run not idempotent: %d creates, %d removes",
			len(backend.created), len(backend.removed))
	}
}

func TestMapperRemovesConflictThenCreates(t *testing.T) {
	backend := &fakeBackend{
		drives: []DriveState{{Letter: "X", Path: `\\srv\old`, Network: true}},
	}
	mapper := &Mapper{
		Backend:  backend,
		Records:  []config.DriveMappingRecord{{ID: 1, Path: `\\srv\new`, DriveLetter: "X"}},
		Username: "alice",
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(backend.removed) != 1 || backend.removed[0] != "X" {
		t.Fatalf("removed = %v, want [X]", backend.removed)
	}
	if len(backend.created) != 1 || backend.created[0].Path != `\\srv\new` {
		t.Fatalf("created = %+v, want \\\\srv\\new", backend.created)
	}
}

func TestMapperStaleCleanupDisabledAfterMembershipLookupFailure(t *testing.T) {
	backend := &fakeBackend{
		drives: []DriveState{{Letter: "S", Path: `\\srv\stale`, Network: true}},
	}
	mapper := &Mapper{
		Backend:                backend,
		Records:                nil,
		Username:               "alice",
		RemoveStale:            true,
		MembershipLookupFailed: true,
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(backend.removed) != 0 {
		t.Fatalf("stale drive removed despite failed membership lookup: %v", backend.removed)
	}
}

func TestMapperStaleCleanupLeavesLocalDrivesAlone(t *testing.T) {
	backend := &fakeBackend{
		drives: []DriveState{
			{Letter: "S", Path: `\\srv\stale`, Network: true},
			{Letter: "D", Network: false},
		},
	}
	mapper := &Mapper{
		Backend:     backend,
		Username:    "alice",
		RemoveStale: true,
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(backend.removed) != 1 || backend.removed[0] != "S" {
		t.Fatalf("removed = %v, want [S]", backend.removed)
	}
}

func TestMapperCreateFailureDoesNotAbortRemainingMappings(t *testing.T) {
	backend := &fakeBackend{createErr: &PathUnreachableError{Path: `\\srv\gone`}}
	mapper := &Mapper{
		Backend: backend,
		Records: []config.DriveMappingRecord{
			{ID: 1, Path: `\\srv\gone`, DriveLetter: "X"},
			{ID: 2, Path: `\\srv\alive`, DriveLetter: "Y"},
		},
		Username: "alice",
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	// Both creates were attempted; the first failure was contained.
	if !backend.marked {
		t.Fatal("MarkPersistent was not called after per-mapping failure")
	}
}

func TestMapperDryRunChangesNothing(t *testing.T) {
	backend := &fakeBackend{
		drives: []DriveState{{Letter: "X", Path: `\\srv\old`, Network: true}},
	}
	mapper := &Mapper{
		Backend:  backend,
		Records:  []config.DriveMappingRecord{{ID: 1, Path: `\\srv\new`, DriveLetter: "X"}},
		Username: "alice",
		DryRun:   true,
	}

	if err := mapper.Run(); err != nil {
		t.Fatalf("Run() returned error: %v", err)
	}
	if len(backend.created) != 0 || len(backend.removed) != 0 || backend.marked {
		t.Fatalf("dry run mutated state: %d creates, %d removes, marked=%v",
			len(backend.created), len(backend.removed), backend.marked)
	}
}
