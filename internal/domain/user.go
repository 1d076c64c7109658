package domain

import "time"

// User is a registered account. Trainers and post authors are users.
type User struct {
	Entity
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	DisplayName  string    `json:"display_name"`
	LastLoginAt  time.Time `json:"last_login_at"`
}

// Name returns the best available name to display for the user.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Session returns the session identity for the user.
func (u *User) Session() *Session {
	return &Session{UserID: u.ID, Email: u.Email, DisplayName: u.Name()}
}
