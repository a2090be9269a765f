package dto

import "encoding/json"

// WSEvent is a message on the live recognition feed.
type WSEvent struct {
	Type      string          `json:"type"` // face_recognized, face_unresolved
	EventID   string          `json:"event_id"`
	ImageID   string          `json:"image_id"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
