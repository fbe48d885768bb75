package core

// Identity is the sender behind a connection: either an authenticated
// username or an anonymous session key, never both and never neither.
// The zero value is invalid.
type Identity struct {
	username   string
	sessionKey string
}

// Authenticated builds the identity of a logged-in user.
func Authenticated(username string) Identity {
	return Identity{username: username}
}

// Anonymous builds the identity of a visitor backed by a session key.
func Anonymous(sessionKey string) Identity {
	return Identity{sessionKey: sessionKey}
}

// IsAuthenticated reports whether the identity carries a username.
func (id Identity) IsAuthenticated() bool {
	return id.username != ""
}

// IsZero reports whether the identity carries neither form.
func (id Identity) IsZero() bool {
	return id.username == "" && id.sessionKey == ""
}

// Key returns the stable identity token: the username for authenticated
// identities, the session key otherwise.
func (id Identity) Key() string {
	if id.username != "" {
		return id.username
	}
	return id.sessionKey
}

// DisplayName returns the user-facing name for the identity.
func (id Identity) DisplayName() string {
	if id.username != "" {
		return id.username
	}
	return "Anonymous"
}
