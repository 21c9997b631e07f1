//go:build !windows

package identity

import (
	"fmt"
	"os/user"
)

// Current resolves the invoking account. SYSTEM has no analogue off Windows.
func Current() (*Account, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	return &Account{Name: u.Username, Username: u.Username}, nil
}

// TransitiveGroups returns the user's local group names.
func TransitiveGroups() ([]string, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	ids, err := u.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("list group ids: %w", err)
	}

	var names []string
	for _, id := range ids {
		g, err := user.LookupGroupId(id)
		if err != nil {
			continue
		}
		names = append(names, g.Name)
	}
	return names, nil
}
