package drivemap

import "fmt"

// Mapping is one desired network drive after config parsing: placeholders
// substituted, filter split, letter normalized.
type Mapping struct {
	ID          int
	Path        string
	DriveLetter string
	Label       string
	GroupFilter []string
}

// DriveState is one drive currently present on the machine, read from the
// OS. Path carries the UNC remote for network drives and is empty for local
// volumes.
type DriveState struct {
	Letter  string
	Path    string
	Network bool
}

// ActionKind classifies a planned reconciliation step.
type ActionKind string

const (
	// ActionRemoveConflict removes an existing drive that blocks a desired
	// mapping: same letter with a different path, or same path on a
	// different letter.
	ActionRemoveConflict ActionKind = "remove-conflict"
	// ActionCreate maps a desired drive.
	ActionCreate ActionKind = "create"
	// ActionRemoveStale removes a mapped network drive that is no longer in
	// the desired set.
	ActionRemoveStale ActionKind = "remove-stale"
)

// Action is one step of a reconciliation plan.
type Action struct {
	Kind    ActionKind
	Letter  string
	Mapping *Mapping // set for ActionCreate
}

// Plan is the ordered outcome of reconciling desired mappings against
// current drive state. Removals always precede the create they unblock.
type Plan struct {
	AlreadyCorrect []Mapping
	Actions        []Action
}

// PathUnreachableError reports that a mapping failed because the target UNC
// path did not answer, as opposed to any other mapping failure.
type PathUnreachableError struct {
	Path string
}

func (e *PathUnreachableError) Error() string {
	return fmt.Sprintf("network path %s is unreachable", e.Path)
}
