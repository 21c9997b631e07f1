// Package schedtask registers the logon scheduled task the drive mapper
// provisions for itself when run under the SYSTEM account.
package schedtask

import "fmt"

// Network-profile operational events that signal a network state change.
// The task re-runs the mapper on either so drives appear as soon as the
// machine reaches the corporate network.
const (
	EventNetworkConnected   = 10000
	EventNetworkStateChange = 4004
)

// Definition describes a task with one any-user logon trigger plus one event
// trigger per subscription, running at limited privilege for the interactive
// users group.
type Definition struct {
	Name               string
	Description        string
	Command            string
	Arguments          string
	WorkingDir         string
	EventSubscriptions []string
}

// NetworkProfileSubscription builds the event-query subscription XML for one
// Microsoft-Windows-NetworkProfile operational event.
func NetworkProfileSubscription(eventID int) string {
	const channel = "Microsoft-Windows-NetworkProfile/Operational"
	return fmt.Sprintf(
		`<QueryList><Query Id="0" Path="%s"><Select Path="%s">*[System[(EventID=%d)]]</Select></Query></QueryList>`,
		channel, channel, eventID,
	)
}
