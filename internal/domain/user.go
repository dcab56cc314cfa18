package domain

import "time"

// User is the domain model for end-users who submit tickets.
type User struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}
