package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateName is returned by stores when a person name is already taken.
var ErrDuplicateName = errors.New("person name already exists")

type Person struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Signature is one face encoding owned by a person. Rows are append-only.
type Signature struct {
	ID           uuid.UUID `json:"id" db:"id"`
	PersonID     uuid.UUID `json:"person_id" db:"person_id"`
	Vector       []float32 `json:"vector" db:"vector"`
	ImageLocator string    `json:"image_locator" db:"image_locator"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Outcome is the result of one resolution call. It is never persisted.
type Outcome struct {
	Success      bool       `json:"success"`
	PersonID     *uuid.UUID `json:"person_id,omitempty"`
	PersonName   string     `json:"person_name,omitempty"`
	Confidence   float64    `json:"confidence"`
	ImageLocator string     `json:"image_path"`
	Message      string     `json:"message"`
	IsNewPerson  bool       `json:"is_new_person"`
	FacesFound   int        `json:"faces_found"`
}
