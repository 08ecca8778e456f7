package models

import "time"

type Membership struct {
	ID        string
	UserID    string
	TenantID  string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// Email is populated by member listings.
	Email string
}
