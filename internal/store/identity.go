package store

import (
	"strings"

	"github.com/google/uuid"
)

// Identity is either an authenticated user or an anonymous browser token,
// never both. The zero value is invalid.
type Identity struct {
	userID    string
	anonToken uuid.UUID
}

// UserIdentity returns the identity of an authenticated account.
func UserIdentity(userID string) (Identity, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Identity{}, Invalid("user id is required")
	}
	return Identity{userID: userID}, nil
}

// AnonymousIdentity returns the identity bound to an anonymous token.
func AnonymousIdentity(token uuid.UUID) (Identity, error) {
	if token == uuid.Nil {
		return Identity{}, Invalid("anonymous token is required")
	}
	return Identity{anonToken: token}, nil
}

// ParseAnonymousIdentity parses the textual token form.
func ParseAnonymousIdentity(token string) (Identity, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(token))
	if err != nil {
		return Identity{}, Invalid("malformed anonymous token")
	}
	return AnonymousIdentity(parsed)
}

// UserID returns the account id and true for authenticated identities.
func (i Identity) UserID() (string, bool) {
	return i.userID, i.userID != ""
}

// AnonymousToken returns the token and true for anonymous identities.
func (i Identity) AnonymousToken() (uuid.UUID, bool) {
	return i.anonToken, i.anonToken != uuid.Nil
}

// IsZero reports whether i was never set.
func (i Identity) IsZero() bool {
	return i.userID == "" && i.anonToken == uuid.Nil
}

// Key is the canonical storage key ("user:<id>" or "anon:<uuid>").
func (i Identity) Key() string {
	if i.userID != "" {
		return "user:" + i.userID
	}
	if i.anonToken != uuid.Nil {
		return "anon:" + i.anonToken.String()
	}
	return ""
}

func (i Identity) String() string {
	return i.Key()
}
