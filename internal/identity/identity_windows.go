//go:build windows

package identity

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Current reads the process token and classifies the account.
func Current() (*Account, error) {
	token := windows.GetCurrentProcessToken()

	user, err := token.GetTokenUser()
	if err != nil {
		return nil, fmt.Errorf("read token user: %w", err)
	}

	sid := user.User.Sid
	isSystem := sid.IsWellKnown(windows.WinLocalSystemSid)

	account, domain, _, err := sid.LookupAccount("")
	if err != nil {
		return nil, fmt.Errorf("resolve account name: %w", err)
	}

	name := account
	if domain != "" {
		name = domain + `\` + account
	}
	return &Account{Name: name, Username: account, IsSystem: isSystem}, nil
}

// TransitiveGroups resolves the process token's group SIDs to names. Token
// groups already include nested memberships, so no directory walk is needed.
// Each group is reported both domain-qualified and bare so config filters can
// use either form.
func TransitiveGroups() ([]string, error) {
	token := windows.GetCurrentProcessToken()

	groups, err := token.GetTokenGroups()
	if err != nil {
		return nil, fmt.Errorf("read token groups: %w", err)
	}

	var names []string
	for _, g := range groups.AllGroups() {
		if g.Attributes&windows.SE_GROUP_ENABLED == 0 {
			continue
		}

		account, domain, accType, err := g.Sid.LookupAccount("")
		if err != nil {
			// Logon-session and orphaned SIDs have no account; skip them.
			continue
		}
		switch accType {
		case windows.SidTypeGroup, windows.SidTypeWellKnownGroup, windows.SidTypeAlias:
		default:
			continue
		}

		names = append(names, account)
		if domain != "" {
			names = append(names, domain+`\`+account)
		}
	}
	return names, nil
}
