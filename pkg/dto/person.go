package dto

import "github.com/google/uuid"

type PersonResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

type PersonListResponse struct {
	Persons []PersonResponse `json:"persons"`
	Total   int              `json:"total"`
}

// SignatureResponse describes a stored signature without its vector.
type SignatureResponse struct {
	ID           uuid.UUID `json:"id"`
	PersonID     uuid.UUID `json:"person_id"`
	ImageLocator string    `json:"image_path"`
	CreatedAt    string    `json:"created_at"`
}

type SignatureListResponse struct {
	Signatures []SignatureResponse `json:"signatures"`
	Total      int                 `json:"total"`
}

// UploadResponse is the outcome of POST /v1/faces/upload.
type UploadResponse struct {
	Success     bool       `json:"success"`
	PersonID    *uuid.UUID `json:"person_id,omitempty"`
	PersonName  string     `json:"person_name,omitempty"`
	Confidence  float64    `json:"confidence"`
	ImagePath   string     `json:"image_path"`
	Message     string     `json:"message"`
	IsNewPerson bool       `json:"is_new_person"`
	FacesFound  int        `json:"faces_found"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
