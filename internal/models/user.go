package models

import "time"

// UserRole is the closed set of roles understood by the access layer.
type UserRole string

const (
	RoleStudent  UserRole = "STUDENT"
	RoleLecturer UserRole = "LECTURER"
	RoleAdmin    UserRole = "ADMIN"
)

// Valid reports whether the role is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleLecturer, RoleAdmin:
		return true
	}
	return false
}

// Staff reports whether the role may triage reports.
func (r UserRole) Staff() bool {
	return r == RoleLecturer || r == RoleAdmin
}

// User represents an account stored in the users table.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         UserRole  `db:"role" json:"role"`
	NIM          *string   `db:"nim" json:"nim,omitempty"`
	NIDN         *string   `db:"nidn" json:"nidn,omitempty"`
	Verified     bool      `db:"is_verified" json:"isVerified"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// Summary trims the user down to the fields embedded in other resources.
func (u *User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// UserSummary is the owner/lecturer block embedded in reports and repairs.
type UserSummary struct {
	ID    string   `db:"id" json:"id"`
	Name  string   `db:"name" json:"name"`
	Email string   `db:"email" json:"email"`
	Role  UserRole `db:"role" json:"role,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination derives the page count from the total.
func NewPagination(page, limit, total int) *Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return &Pagination{Page: page, Limit: limit, Total: total, TotalPages: pages}
}
