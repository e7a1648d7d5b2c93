package user

import "time"

// User represents an identity in the system. Authentication lives upstream;
// this registry only maps stable IDs to display data.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
