package domain

// Session is the credential set for the current client: the signed-in user
// plus the access/refresh token pair. Both tokens are always present together
// or absent together; a session with only one of them is invalid.
type Session struct {
	User         *User  `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticated reports whether the session carries a full credential set.
func (s *Session) Authenticated() bool {
	return s != nil && s.User != nil && s.AccessToken != "" && s.RefreshToken != ""
}

// Clone returns a shallow copy so callers can read session fields without
// holding the owner's lock.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
