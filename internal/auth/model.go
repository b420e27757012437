package auth

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// Session is the result of a successful register, login or refresh call: the
// authenticated user plus a fresh access/refresh token pair.
type Session struct {
	User         User
	AccessToken  string
	RefreshToken string
}
