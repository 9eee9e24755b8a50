package models

// Session is the caller identity derived from verified token claims.
// A nil *Session means the caller is anonymous.
type Session struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	IsAdmin       bool   `json:"is_admin"`
}

// Authenticated reports whether s identifies a signed-in user
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// Session event types
const (
	SessionSignedIn       = "signed_in"
	SessionSignedOut      = "signed_out"
	SessionTokenRefreshed = "token_refreshed"
)

// SessionEvent is pushed to a user's session stream whenever their
// authentication state changes
type SessionEvent struct {
	Type    string   `json:"type"`
	Session *Session `json:"session"`
}
