package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/recognition"
)

const (
	errNoImageData   = "No image data provided"
	errInvalidBase64 = "Invalid base64 image data"
	defaultFileName  = "unknown.jpg"
)

// ImageProcessor resolves an uploaded image to an identity.
type ImageProcessor interface {
	Process(ctx context.Context, up recognition.Upload, declaredName string) (*models.Outcome, error)
}

// PersonDeleter removes a person and everything it owns.
type PersonDeleter interface {
	DeletePerson(ctx context.Context, id uuid.UUID) error
}

// EventPublisher emits outcome events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, data any) (string, error)
}

// ImageReceivedHandler turns image.received events into face.recognition
// and data.saved events.
type ImageReceivedHandler struct {
	processor ImageProcessor
	publisher EventPublisher
	now       func() time.Time
}

func NewImageReceivedHandler(processor ImageProcessor, publisher EventPublisher) *ImageReceivedHandler {
	return &ImageReceivedHandler{processor: processor, publisher: publisher, now: time.Now}
}

func (h *ImageReceivedHandler) RoutingKey() string {
	return models.RoutingImageReceived
}

// Handle returns an error only for failures worth a redelivery: storage,
// inference or publish errors. Bad input is answered with a failed
// data.saved event and acknowledged.
func (h *ImageReceivedHandler) Handle(ctx context.Context, env models.Envelope) error {
	start := h.now()

	var data models.ImageReceivedData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		// A mistyped side field leaves the rest decoded.
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) || data.ImageID == "" {
			slog.Error("invalid image.received payload", "event_id", env.EventID, "error", err)
			return nil
		}
		slog.Warn("image.received field ignored", "event_id", env.EventID, "image_id", data.ImageID, "field", typeErr.Field, "error", err)
	}
	if data.ImageID == "" {
		slog.Error("image.received without image_id", "event_id", env.EventID)
		return nil
	}

	log := slog.With("image_id", data.ImageID, "event_id", env.EventID)
	log.Info("processing image",
		"file_name", data.FileName,
		"file_size", data.FileSize,
		"mime_type", data.MimeType,
		"user_id", data.UserID,
		"registering", data.DeclaredName() != "",
	)

	payload := data.Payload()
	if payload == "" {
		log.Error("missing image data")
		return h.publishSaved(ctx, failedSave(data.ImageID, errNoImageData, h.now()))
	}

	image, err := decodeBase64(payload)
	if err != nil {
		log.Error("decode base64", "error", err)
		return h.publishSaved(ctx, failedSave(data.ImageID, errInvalidBase64, h.now()))
	}

	fileName := data.FileName
	if fileName == "" {
		fileName = defaultFileName
	}

	outcome, err := h.processor.Process(ctx, recognition.Upload{FileName: fileName, Data: image}, data.DeclaredName())
	if err != nil {
		var ve *recognition.ValidationError
		if errors.As(err, &ve) {
			log.Warn("image rejected", "reason", ve.Reason)
			outcome = &models.Outcome{Success: false, Message: ve.Reason}
		} else {
			log.Error("process image", "error", err)
			if perr := h.publishSaved(ctx, failedSave(data.ImageID, err.Error(), h.now())); perr != nil {
				log.Warn("publish failure event", "error", perr)
			}
			return fmt.Errorf("process image %s: %w", data.ImageID, err)
		}
	}

	elapsed := h.now().Sub(start)
	if outcome.Success {
		log.Info("face resolved",
			"person", outcome.PersonName,
			"confidence", outcome.Confidence,
			"is_new", outcome.IsNewPerson,
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		log.Warn("face not resolved", "message", outcome.Message, "duration_ms", elapsed.Milliseconds())
	}

	if _, err := h.publisher.Publish(ctx, models.RoutingFaceRecognition, recognitionResult(data.ImageID, outcome, elapsed)); err != nil {
		return fmt.Errorf("publish recognition result: %w", err)
	}
	return h.publishSaved(ctx, savedFromOutcome(data.ImageID, outcome, h.now()))
}

func (h *ImageReceivedHandler) publishSaved(ctx context.Context, saved models.DataSavedData) error {
	if _, err := h.publisher.Publish(ctx, models.RoutingDataSaved, saved); err != nil {
		return fmt.Errorf("publish data saved: %w", err)
	}
	return nil
}

// decodeBase64 accepts standard base64 with or without padding and with an
// optional data URL prefix.
func decodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func recognitionResult(imageID string, o *models.Outcome, elapsed time.Duration) models.RecognitionResultData {
	res := models.RecognitionResultData{
		ImageID:      imageID,
		FacesFound:   o.FacesFound,
		ProcessingMS: elapsed.Milliseconds(),
		Results:      []models.FaceResult{},
	}
	if o.Success && o.FacesFound > 0 {
		res.Results = append(res.Results, models.FaceResult{
			FaceID:     "face_" + imageID,
			Confidence: o.Confidence,
			Attributes: models.FaceAttributes{
				PersonName:  o.PersonName,
				IsNewPerson: o.IsNewPerson,
			},
		})
	}
	return res
}

func savedFromOutcome(imageID string, o *models.Outcome, at time.Time) models.DataSavedData {
	if !o.Success {
		msg := o.Message
		if msg == "" {
			msg = "Face recognition failed"
		}
		return failedSave(imageID, msg, at)
	}
	return models.DataSavedData{
		ImageID:    imageID,
		SavedAt:    at.UTC(),
		Success:    true,
		StorageURL: o.ImageLocator,
	}
}

func failedSave(imageID, reason string, at time.Time) models.DataSavedData {
	return models.DataSavedData{
		ImageID: imageID,
		SavedAt: at.UTC(),
		Success: false,
		Error:   reason,
	}
}

// PersonDeleteHandler applies person.delete events.
type PersonDeleteHandler struct {
	deleter PersonDeleter
}

func NewPersonDeleteHandler(deleter PersonDeleter) *PersonDeleteHandler {
	return &PersonDeleteHandler{deleter: deleter}
}

func (h *PersonDeleteHandler) RoutingKey() string {
	return models.RoutingPersonDelete
}

func (h *PersonDeleteHandler) Handle(ctx context.Context, env models.Envelope) error {
	var data models.PersonDeleteData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		slog.Error("invalid person.delete payload", "event_id", env.EventID, "error", err)
		return nil
	}
	id, err := uuid.Parse(data.PersonID)
	if err != nil {
		slog.Error("person.delete with bad person_id", "event_id", env.EventID, "person_id", data.PersonID)
		return nil
	}

	if err := h.deleter.DeletePerson(ctx, id); err != nil {
		if errors.Is(err, recognition.ErrNotFound) {
			slog.Warn("person.delete for unknown person", "person_id", id)
			return nil
		}
		return fmt.Errorf("delete person %s: %w", id, err)
	}
	slog.Info("person deleted by event", "person_id", id, "event_id", env.EventID)
	return nil
}
