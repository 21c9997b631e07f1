// Package identity resolves the invoking OS account and its transitive
// group membership. Results are passed into the mapper explicitly; logic
// packages never read account state ambiently.
package identity

// Account describes the account this process runs as.
type Account struct {
	// Name is the qualified account name (DOMAIN\user on Windows).
	Name string
	// Username is the bare account name, used for %USERNAME% substitution.
	Username string
	// IsSystem reports whether the process runs as the local SYSTEM account.
	IsSystem bool
}
