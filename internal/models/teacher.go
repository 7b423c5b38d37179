package models

import "time"

// Teacher is a staff member whose attendance is tracked. Teachers are never
// hard deleted; Active=false hides them from rosters and daily stats.
type Teacher struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Name       string    `db:"name" json:"name"`
	Department string    `db:"department" json:"department"`
	Subject    string    `db:"subject" json:"subject"`
	PhotoURL   *string   `db:"photo_url" json:"photo_url,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search     string
	Department string
	Active     *bool
	Page       int
	PageSize   int
}
