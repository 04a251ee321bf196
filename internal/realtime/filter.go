package realtime

import "fmt"

type filterScope int

const (
	scopeUserOnly filterScope = iota
	scopeSessionAll
)

// RecipientFilter selects which room an emission is delivered to. Construct
// through UserScoped or SessionScoped; the zero value addresses nobody.
type RecipientFilter struct {
	scope     filterScope
	accountID string
	sessionID string
}

// UserScoped addresses only sockets bound to one account's personal room.
// Payloads that carry account-private data (cursors, secrets) must use this.
func UserScoped(accountID string) RecipientFilter {
	return RecipientFilter{scope: scopeUserOnly, accountID: accountID}
}

// SessionScoped addresses every socket subscribed to the session's room,
// across accounts. Only payload kinds explicitly safe for session-wide
// broadcast may use this.
func SessionScoped(sessionID string) RecipientFilter {
	return RecipientFilter{scope: scopeSessionAll, sessionID: sessionID}
}

// room resolves the single room the filter addresses.
func (f RecipientFilter) room() (string, error) {
	switch f.scope {
	case scopeUserOnly:
		if f.accountID == "" {
			return "", fmt.Errorf("user-scoped filter without account id")
		}
		return userRoom(f.accountID), nil
	case scopeSessionAll:
		if f.sessionID == "" {
			return "", fmt.Errorf("session-scoped filter without session id")
		}
		return sessionRoom(f.sessionID), nil
	}
	return "", fmt.Errorf("unknown filter scope %d", f.scope)
}

func userRoom(accountID string) string    { return "user:" + accountID }
func sessionRoom(sessionID string) string { return "session:" + sessionID }
func machineRoom(machineID string) string { return "machine:" + machineID }
