package schedtask

import (
	"strings"
	"testing"
)

func TestNetworkProfileSubscriptionTargetsOperationalChannel(t *testing.T) {
	got := NetworkProfileSubscription(EventNetworkConnected)

	if !strings.Contains(got, "Microsoft-Windows-NetworkProfile/Operational") {
		t.Fatalf("subscription missing channel: %s", got)
	}
	if !strings.Contains(got, "EventID=10000") {
		t.Fatalf("subscription missing event id: %s", got)
	}
}

func TestNetworkProfileSubscriptionStateChangeEvent(t *testing.T) {
	got := NetworkProfileSubscription(EventNetworkStateChange)

	if !strings.Contains(got, "EventID=4004") {
		t.Fatalf("subscription missing event id: %s", got)
	}
}
