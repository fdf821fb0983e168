// Package identity models the shopper behind a request: either an
// authenticated user or an anonymous guest session. Carts, coupon usage, and
// orders all key off one of the two, never both.
package identity

import "fmt"

type kind uint8

const (
	kindNone kind = iota
	kindUser
	kindGuest
)

// Identity is a tagged variant: exactly one of user id or session id is set.
// The zero value is unresolved and fails IsZero-guarded paths.
type Identity struct {
	k         kind
	userID    int64
	sessionID string
}

// User builds an identity for an authenticated user.
func User(id int64) Identity {
	return Identity{k: kindUser, userID: id}
}

// Guest builds an identity for an anonymous session.
func Guest(sessionID string) Identity {
	return Identity{k: kindGuest, sessionID: sessionID}
}

func (i Identity) IsZero() bool  { return i.k == kindNone }
func (i Identity) IsUser() bool  { return i.k == kindUser }
func (i Identity) IsGuest() bool { return i.k == kindGuest }

// UserID returns the user id when the identity is an authenticated user.
func (i Identity) UserID() (int64, bool) {
	return i.userID, i.k == kindUser
}

// SessionID returns the session id when the identity is a guest.
func (i Identity) SessionID() (string, bool) {
	return i.sessionID, i.k == kindGuest
}

func (i Identity) String() string {
	switch i.k {
	case kindUser:
		return fmt.Sprintf("user:%d", i.userID)
	case kindGuest:
		return "session:" + i.sessionID
	default:
		return "unresolved"
	}
}
