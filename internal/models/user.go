package models

import "time"

// User represents a learner or administrator account
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Principal returns the purchase principal for this account
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Email: u.Email}
}
