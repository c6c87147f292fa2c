package models

import "time"

// Student is an enrollable person with a face signature held by the
// recognition gateway. Deactivation is a soft delete so historical
// attendance records stay intact.
type Student struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      *string   `db:"code" json:"code,omitempty"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	ImagePath *string   `db:"image_path" json:"image_path,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StudentFilter scopes student listings.
type StudentFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}
