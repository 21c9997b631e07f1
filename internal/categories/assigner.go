package categories

import (
	"context"

	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/graph"
	"github.com/fleetline/agent/internal/logging"
)

var log = logging.L("categories")

// DirectoryClient is the slice of the Graph client the assigner needs.
type DirectoryClient interface {
	GroupByDisplayName(ctx context.Context, name string) (*graph.Group, int, error)
	ListGroupMembers(ctx context.Context, groupID string) ([]graph.User, error)
	UserByID(ctx context.Context, id string) (*graph.User, error)
	ManagedDevicesByUPN(ctx context.Context, upn string) ([]graph.ManagedDevice, error)
	DeviceCategoryByDisplayName(ctx context.Context, name string) (*graph.DeviceCategory, error)
	AssignDeviceCategory(ctx context.Context, deviceID, categoryID string) error
	ManagedDevice(ctx context.Context, deviceID string) (*graph.ManagedDevice, error)
}

// Summary counts the units of work a run touched. Used for the final log
// line only; failures never abort the run.
type Summary struct {
	GroupsProcessed int
	GroupsSkipped   int
	UsersProcessed  int
	UsersSkipped    int
	DevicesUpdated  int
	DevicesFailed   int
}

// Assigner assigns Intune device categories to managed devices based on the
// directory-group membership of their primary user.
type Assigner struct {
	Client DirectoryClient
	Rules  []config.CategoryRule
	DryRun bool
}

// Run processes every configured rule. All failures are contained at the
// smallest enclosing unit (group, user, or device) and logged.
func (a *Assigner) Run(ctx context.Context) Summary {
	var sum Summary

	for _, rule := range a.Rules {
		if !a.runRule(ctx, rule, &sum) {
			sum.GroupsSkipped++
			continue
		}
		sum.GroupsProcessed++
	}

	log.Info("category assignment finished",
		"groups", sum.GroupsProcessed,
		"groupsSkipped", sum.GroupsSkipped,
		"users", sum.UsersProcessed,
		"devicesUpdated", sum.DevicesUpdated,
		"devicesFailed", sum.DevicesFailed,
	)
	return sum
}

// runRule handles one (group, category) pair. Returns false when the group
// could not be processed at all.
func (a *Assigner) runRule(ctx context.Context, rule config.CategoryRule, sum *Summary) bool {
	group, matches, err := a.Client.GroupByDisplayName(ctx, rule.Group)
	if err != nil {
		if graph.IsNotFound(err) {
			log.Warn("group not found, skipping", logging.KeyGroup, rule.Group)
		} else {
			log.Error("group lookup failed, skipping", logging.KeyGroup, rule.Group, logging.KeyError, err)
		}
		return false
	}
	if matches > 1 {
		// Duplicate display names are unexpected; flag and use the first.
		log.Warn("group display name is ambiguous, using first match",
			logging.KeyGroup, rule.Group, "matches", matches)
	}

	category, err := a.Client.DeviceCategoryByDisplayName(ctx, rule.Category)
	if err != nil {
		if graph.IsNotFound(err) {
			log.Warn("device category not found, skipping group",
				logging.KeyCategory, rule.Category, logging.KeyGroup, rule.Group)
		} else {
			log.Error("device category lookup failed, skipping group",
				logging.KeyCategory, rule.Category, logging.KeyError, err)
		}
		return false
	}

	members, err := a.Client.ListGroupMembers(ctx, group.ID)
	if err != nil {
		log.Error("member listing failed, skipping group",
			logging.KeyGroup, rule.Group, logging.KeyError, err)
		return false
	}

	log.Info("processing group",
		logging.KeyGroup, group.DisplayName,
		logging.KeyCategory, category.DisplayName,
		"members", len(members),
	)

	for _, member := range members {
		upn := member.UserPrincipalName
		if upn == "" {
			user, err := a.Client.UserByID(ctx, member.ID)
			if err != nil {
				log.Error("user resolution failed, skipping user",
					logging.KeyUser, member.ID, logging.KeyError, err)
				sum.UsersSkipped++
				continue
			}
			upn = user.UserPrincipalName
		}

		a.assignForUser(ctx, upn, category, sum)
		sum.UsersProcessed++
	}
	return true
}

func (a *Assigner) assignForUser(ctx context.Context, upn string, category *graph.DeviceCategory, sum *Summary) {
	devices, err := a.Client.ManagedDevicesByUPN(ctx, upn)
	if err != nil {
		log.Error("managed device lookup failed, skipping user",
			logging.KeyUser, upn, logging.KeyError, err)
		return
	}
	if len(devices) == 0 {
		log.Debug("no managed devices", logging.KeyUser, upn)
		return
	}

	for _, device := range devices {
		if device.DeviceCategoryDisplayName == category.DisplayName {
			log.Debug("device already in category",
				logging.KeyDevice, device.DeviceName, logging.KeyCategory, category.DisplayName)
			continue
		}

		if a.DryRun {
			log.Info("dry-run: would assign category",
				logging.KeyDevice, device.DeviceName,
				logging.KeyUser, upn,
				logging.KeyCategory, category.DisplayName,
			)
			continue
		}

		if err := a.Client.AssignDeviceCategory(ctx, device.ID, category.ID); err != nil {
			log.Error("category assignment failed",
				logging.KeyDevice, device.DeviceName, logging.KeyError, err)
			sum.DevicesFailed++
			continue
		}

		a.verify(ctx, device, category)
		sum.DevicesUpdated++
	}
}

// verify re-reads the device and compares the reflected category name. The
// reference update is accepted asynchronously by the service, so a mismatch
// is only a warning.
func (a *Assigner) verify(ctx context.Context, device graph.ManagedDevice, category *graph.DeviceCategory) {
	updated, err := a.Client.ManagedDevice(ctx, device.ID)
	if err != nil {
		log.Warn("verification read failed",
			logging.KeyDevice, device.DeviceName, logging.KeyError, err)
		return
	}
	if updated.DeviceCategoryDisplayName != category.DisplayName {
		log.Warn("category not yet reflected on device",
			logging.KeyDevice, device.DeviceName,
			"reflected", updated.DeviceCategoryDisplayName,
			logging.KeyCategory, category.DisplayName,
		)
		return
	}
	log.Info("category assigned",
		logging.KeyDevice, device.DeviceName,
		logging.KeyUser, device.UserPrincipalName,
		logging.KeyCategory, category.DisplayName,
	)
}
