package models

import "time"

type Artifact struct {
	ID        string
	TenantID  string
	CreatedBy string
	Name      string
	Content   string
	CreatedAt time.Time
}
