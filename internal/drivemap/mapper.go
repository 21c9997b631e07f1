package drivemap

import (
	"errors"

	"github.com/fleetline/agent/internal/config"
	"github.com/fleetline/agent/internal/logging"
)

var log = logging.L("drivemap")

// Backend abstracts the OS drive surface so the reconciliation logic can be
// exercised without a Windows session.
type Backend interface {
	// CurrentDrives enumerates drives, excluding the OS/system volumes.
	CurrentDrives() ([]DriveState, error)
	// Create maps the drive with persistence enabled and sets its label.
	Create(m Mapping) error
	// Remove disconnects the drive at the given letter.
	Remove(letter string) error
	// MarkPersistent flags all mapped network drives to reconnect at logon.
	MarkPersistent() error
}

// Mapper reconciles the local drive state against the desired mappings for
// one user. All inputs are injected; nothing is read from ambient state.
type Mapper struct {
	Backend                Backend
	Records                []config.DriveMappingRecord
	Username               string
	Memberships            []string
	MembershipLookupFailed bool
	RemoveStale            bool
	DryRun                 bool
}

// Run executes one reconciliation pass. Per-mapping failures are logged and
// never abort the remaining mappings.
func (m *Mapper) Run() error {
	desired := Filter(ParseMappings(m.Records, m.Username), m.Memberships)

	current, err := m.Backend.CurrentDrives()
	if err != nil {
		return err
	}

	// A failed membership lookup disables stale cleanup for the whole run:
	// mappings that would have been kept by a filter are missing from the
	// desired set, and removing drives based on that set would be wrong.
	removeStale := m.RemoveStale && !m.MembershipLookupFailed
	if m.RemoveStale && m.MembershipLookupFailed {
		log.Warn("stale drive cleanup disabled: group membership lookup failed")
	}

	plan := BuildPlan(desired, current, removeStale)

	for _, mapping := range plan.AlreadyCorrect {
		log.Info("drive already mapped",
			logging.KeyDrive, mapping.DriveLetter, logging.KeyPath, mapping.Path)
	}

	for _, action := range plan.Actions {
		m.apply(action)
	}

	if m.DryRun {
		return nil
	}
	if err := m.Backend.MarkPersistent(); err != nil {
		log.Error("marking drives persistent failed", logging.KeyError, err)
	}
	return nil
}

func (m *Mapper) apply(action Action) {
	switch action.Kind {
	case ActionRemoveConflict:
		if m.DryRun {
			log.Info("dry-run: would remove conflicting drive", logging.KeyDrive, action.Letter)
			return
		}
		if err := m.Backend.Remove(action.Letter); err != nil {
			log.Error("removing conflicting drive failed",
				logging.KeyDrive, action.Letter, logging.KeyError, err)
			return
		}
		log.Info("removed conflicting drive", logging.KeyDrive, action.Letter)

	case ActionCreate:
		mapping := *action.Mapping
		if m.DryRun {
			log.Info("dry-run: would map drive",
				logging.KeyDrive, mapping.DriveLetter, logging.KeyPath, mapping.Path)
			return
		}
		if err := m.Backend.Create(mapping); err != nil {
			var unreachable *PathUnreachableError
			if errors.As(err, &unreachable) {
				log.Error("drive mapping failed: path unreachable",
					logging.KeyDrive, mapping.DriveLetter, logging.KeyPath, mapping.Path)
			} else {
				log.Error("drive mapping failed",
					logging.KeyDrive, mapping.DriveLetter,
					logging.KeyPath, mapping.Path,
					logging.KeyError, err)
			}
			return
		}
		log.Info("mapped drive",
			logging.KeyDrive, mapping.DriveLetter,
			logging.KeyPath, mapping.Path,
			"label", mapping.Label)

	case ActionRemoveStale:
		if m.DryRun {
			log.Info("dry-run: would remove stale drive", logging.KeyDrive, action.Letter)
			return
		}
		if err := m.Backend.Remove(action.Letter); err != nil {
			log.Error("removing stale drive failed",
				logging.KeyDrive, action.Letter, logging.KeyError, err)
			return
		}
		log.Info("removed stale drive", logging.KeyDrive, action.Letter)
	}
}
