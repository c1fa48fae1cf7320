package domain

import "time"

// TokenPair is what a successful verification returns: a short-lived access
// token and a longer-lived refresh token, both self-contained JWTs. The
// HTTP layer owns the wire shape; this struct never marshals directly.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // always "Bearer"
	ExpiresIn    time.Duration
}
