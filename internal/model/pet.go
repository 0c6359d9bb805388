package model

import (
	"time"

	"github.com/google/uuid"
)

// Pet is a patient animal registered under a customer.
type Pet struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OrganizationID uuid.UUID  `json:"organization_id" db:"organization_id"`
	CustomerID     uuid.UUID  `json:"customer_id" db:"customer_id"`
	Name           string     `json:"name" db:"name"`
	Species        string     `json:"species" db:"species"`
	Breed          string     `json:"breed" db:"breed"`
	BirthDate      *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Notes          string     `json:"notes" db:"notes"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

type CreatePetRequest struct {
	CustomerID uuid.UUID  `json:"customer_id" binding:"required"`
	Name       string     `json:"name" binding:"required"`
	Species    string     `json:"species" binding:"required"`
	Breed      string     `json:"breed"`
	BirthDate  *time.Time `json:"birth_date"`
	Notes      string     `json:"notes"`
}

type UpdatePetRequest struct {
	Name      string     `json:"name"`
	Species   string     `json:"species"`
	Breed     string     `json:"breed"`
	BirthDate *time.Time `json:"birth_date"`
	Notes     string     `json:"notes"`
}
