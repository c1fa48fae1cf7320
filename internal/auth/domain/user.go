package domain

import "time"

// User is a staff account authenticated by username and password. Users
// share the credential lockout policy with supplier PINs.
type User struct {
	ID           string
	Username     string
	PasswordHash string // argon2id encoded
	Admin        bool
	FailureCount int
	LockedUntil  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Locked reports whether the user account is locked at the given instant.
func (u User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}
