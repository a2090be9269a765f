package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/recognition"
	"github.com/your-org/faceid/pkg/dto"
)

// FaceService is the part of the resolution service the HTTP API uses.
type FaceService interface {
	Process(ctx context.Context, up recognition.Upload, declaredName string) (*models.Outcome, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	GetPersonByName(ctx context.Context, name string) (*models.Person, error)
	ListSignatures(ctx context.Context, personID uuid.UUID) ([]models.Signature, error)
	DeletePerson(ctx context.Context, id uuid.UUID) error
}

// multipartOverhead covers boundaries and form fields around the file part.
const multipartOverhead = 64 << 10

type FaceHandler struct {
	svc       FaceService
	maxUpload int64
}

// NewFaceHandler caps request bodies at maxUpload plus multipart framing.
// Zero disables the cap.
func NewFaceHandler(svc FaceService, maxUpload int64) *FaceHandler {
	return &FaceHandler{svc: svc, maxUpload: maxUpload}
}

// Upload identifies the face in a multipart "file", or registers it when
// "person_name" is set.
func (h *FaceHandler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
	}

	file, header, err := c.Request.FormFile("file")
	if tooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "File size exceeds maximum allowed"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "No file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if tooLarge(err) {
		c.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: "File size exceeds maximum allowed"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "read upload failed"})
		return
	}

	outcome, err := h.svc.Process(c.Request.Context(),
		recognition.Upload{FileName: header.Filename, Data: data},
		c.PostForm("person_name"),
	)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UploadResponse{
		Success:     outcome.Success,
		PersonID:    outcome.PersonID,
		PersonName:  outcome.PersonName,
		Confidence:  outcome.Confidence,
		ImagePath:   outcome.ImageLocator,
		Message:     outcome.Message,
		IsNewPerson: outcome.IsNewPerson,
		FacesFound:  outcome.FacesFound,
	})
}

func (h *FaceHandler) ListPersons(c *gin.Context) {
	persons, err := h.svc.ListPersons(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.PersonResponse, 0, len(persons))
	for _, p := range persons {
		resp = append(resp, personResponse(p))
	}
	c.JSON(http.StatusOK, dto.PersonListResponse{Persons: resp, Total: len(resp)})
}

func (h *FaceHandler) GetPerson(c *gin.Context) {
	person, err := h.svc.GetPersonByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, personResponse(*person))
}

// ListSignatures returns signature metadata for a person. Vectors are not
// exposed.
func (h *FaceHandler) ListSignatures(c *gin.Context) {
	person, err := h.svc.GetPersonByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	sigs, err := h.svc.ListSignatures(c.Request.Context(), person.ID)
	if err != nil {
		writeError(c, err)
		return
	}

	resp := make([]dto.SignatureResponse, 0, len(sigs))
	for _, s := range sigs {
		resp = append(resp, dto.SignatureResponse{
			ID:           s.ID,
			PersonID:     s.PersonID,
			ImageLocator: s.ImageLocator,
			CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, dto.SignatureListResponse{Signatures: resp, Total: len(resp)})
}

func (h *FaceHandler) DeletePerson(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid person id"})
		return
	}

	if err := h.svc.DeletePerson(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func personResponse(p models.Person) dto.PersonResponse {
	return dto.PersonResponse{
		ID:        p.ID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func writeError(c *gin.Context, err error) {
	var ve *recognition.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: ve.Reason})
	case errors.Is(err, recognition.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "person not found"})
	default:
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error"})
	}
}
