package identity

import "fmt"

// Class describes which quota bucket an identity falls into.
type Class string

const (
	ClassAuthenticated Class = "authenticated"
	ClassAnonymous     Class = "anonymous"
)

// Identity is the key under which usage quota and artifact ownership are
// tracked. It is either an authenticated user id or, for anonymous requests,
// the client IP address — never both. An authenticated request always
// resolves to the user id and never falls back to the IP.
type Identity struct {
	userID string
	ip     string
}

// User returns the identity of an authenticated user.
func User(id string) Identity {
	return Identity{userID: id}
}

// Anonymous returns the identity of an unauthenticated client.
func Anonymous(ip string) Identity {
	return Identity{ip: ip}
}

// IsAuthenticated reports whether the identity carries a user id.
func (i Identity) IsAuthenticated() bool {
	return i.userID != ""
}

// UserID returns the user id, or the empty string for anonymous identities.
func (i Identity) UserID() string {
	return i.userID
}

// Valid reports whether the identity carries exactly one discriminant.
func (i Identity) Valid() bool {
	return (i.userID != "") != (i.ip != "")
}

// Class returns the quota class of the identity.
func (i Identity) Class() Class {
	if i.IsAuthenticated() {
		return ClassAuthenticated
	}
	return ClassAnonymous
}

// Key returns the stable string key used in the usage ledger and on
// persisted records: "user:<id>" for authenticated users, "ip:<addr>"
// otherwise.
func (i Identity) Key() string {
	if i.IsAuthenticated() {
		return "user:" + i.userID
	}
	return "ip:" + i.ip
}

// String implements fmt.Stringer. It is safe for logging.
func (i Identity) String() string {
	return fmt.Sprintf("%s(%s)", i.Class(), i.Key())
}
