package models

import (
	"encoding/json"
	"time"
)

// Routing keys. Inbound keys are bound to the worker queue; outbound keys
// are published by the worker and consumed elsewhere.
const (
	RoutingImageReceived   = "image.received"
	RoutingPersonDelete    = "person.delete"
	RoutingFaceRecognition = "face.recognition"
	RoutingDataSaved       = "data.saved"
)

// Envelope wraps every message on the broker.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// ImageReceivedData is the payload of image.received. Field names follow the
// upstream gateway; image_bytes and registration_name are accepted as aliases.
type ImageReceivedData struct {
	ImageID          string         `json:"image_id"`
	ImageData        string         `json:"image_data"`
	ImageBytes       string         `json:"image_bytes,omitempty"`
	FileName         string         `json:"file_name"`
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	UserID           string         `json:"user_id,omitempty"`
	Name             string         `json:"name,omitempty"`
	RegistrationName string         `json:"registration_name,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Payload returns the base64 image, whichever field carried it.
func (d ImageReceivedData) Payload() string {
	if d.ImageData != "" {
		return d.ImageData
	}
	return d.ImageBytes
}

// DeclaredName returns the registration name, if any.
func (d ImageReceivedData) DeclaredName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.RegistrationName
}

// PersonDeleteData is the payload of person.delete.
type PersonDeleteData struct {
	PersonID string `json:"person_id"`
}

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type FaceAttributes struct {
	PersonName  string `json:"person_name,omitempty"`
	IsNewPerson bool   `json:"is_new_person"`
}

type FaceResult struct {
	FaceID      string         `json:"face_id"`
	Confidence  float64        `json:"confidence"`
	BoundingBox BoundingBox    `json:"bounding_box"`
	Attributes  FaceAttributes `json:"attributes"`
}

// RecognitionResultData is the payload of face.recognition.
type RecognitionResultData struct {
	ImageID      string       `json:"image_id"`
	FacesFound   int          `json:"faces_found"`
	ProcessingMS int64        `json:"processing_ms"`
	Results      []FaceResult `json:"results"`
}

// DataSavedData is the payload of data.saved.
type DataSavedData struct {
	ImageID    string    `json:"image_id"`
	SavedAt    time.Time `json:"saved_at"`
	Success    bool      `json:"success"`
	StorageURL string    `json:"storage_url,omitempty"`
	Error      string    `json:"error,omitempty"`
}
