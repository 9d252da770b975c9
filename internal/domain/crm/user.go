package crm

import "github.com/google/uuid"

// User is an entry of the user directory. Users are owned by the identity
// subsystem; the import pipeline only reads them.
type User struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}
