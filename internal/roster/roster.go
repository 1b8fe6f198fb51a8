// Package roster holds the reference data the attendance log points at:
// parents, their linked children, and the staff accounts that perform
// check-ins and check-outs.
package roster

import "time"

// Parent identifies a household. QRSecret is the shared secret embedded
// in the parent's QR code and verified at scan resolution.
type Parent struct {
	ID        string    `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	QRSecret  string    `json:"-"`
	ChildIDs  []string  `json:"childIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// Child belongs to at least one parent; creation requires a parent link.
type Child struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	DateOfBirth  string    `json:"dateOfBirth,omitempty"`
	Allergies    string    `json:"allergies,omitempty"`
	MedicalNotes string    `json:"medicalNotes,omitempty"`
	PhotoURL     string    `json:"photoUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Staff is an authenticated operator. PasswordHash never leaves the server.
type Staff struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	Active       bool      `json:"isActive"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}
