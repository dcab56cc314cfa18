package domain

import "time"

// Operator models a support agent who can be assigned tickets.
type Operator struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}
