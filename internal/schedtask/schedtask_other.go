//go:build !windows

package schedtask

import "errors"

// Register is Windows-only; the Task Scheduler has no analogue here.
func Register(Definition) error {
	return errors.New("scheduled task registration is only supported on windows")
}
