package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/recognition"
	"github.com/your-org/faceid/pkg/dto"
)

type fakeService struct {
	outcome    *models.Outcome
	processErr error
	upload     recognition.Upload
	name       string

	persons    []models.Person
	signatures []models.Signature
	err        error
	deleted    []uuid.UUID
}

func (f *fakeService) Process(_ context.Context, up recognition.Upload, name string) (*models.Outcome, error) {
	f.upload, f.name = up, name
	return f.outcome, f.processErr
}

func (f *fakeService) ListPersons(context.Context) ([]models.Person, error) {
	return f.persons, f.err
}

func (f *fakeService) GetPersonByName(_ context.Context, name string) (*models.Person, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range f.persons {
		if p.Name == name {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("person %q: %w", name, recognition.ErrNotFound)
}

func (f *fakeService) ListSignatures(_ context.Context, personID uuid.UUID) ([]models.Signature, error) {
	var out []models.Signature
	for _, s := range f.signatures {
		if s.PersonID == personID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeService) DeletePerson(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	for _, p := range f.persons {
		if p.ID == id {
			f.deleted = append(f.deleted, id)
			return nil
		}
	}
	return fmt.Errorf("person %s: %w", id, recognition.ErrNotFound)
}

const testMaxUpload = 1 << 20

func newFaceEngine(svc FaceService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewFaceHandler(svc, testMaxUpload)
	r.POST("/faces/upload", h.Upload)
	r.GET("/faces/persons", h.ListPersons)
	r.GET("/faces/persons/:name", h.GetPerson)
	r.GET("/faces/persons/:name/signatures", h.ListSignatures)
	r.DELETE("/faces/persons/:id", h.DeletePerson)
	return r
}

func multipartUpload(t *testing.T, fileName string, data []byte, personName string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	if personName != "" {
		require.NoError(t, w.WriteField("person_name", personName))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/faces/upload", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestUpload_Registers(t *testing.T) {
	id := uuid.New()
	svc := &fakeService{outcome: &models.Outcome{
		Success:      true,
		PersonID:     &id,
		PersonName:   "Alice",
		Confidence:   1,
		ImageLocator: "persons/a/1.jpg",
		Message:      recognition.MsgRegistered,
		IsNewPerson:  true,
		FacesFound:   1,
	}}

	rec := serve(newFaceEngine(svc), multipartUpload(t, "alice.jpg", []byte("img"), "Alice"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice.jpg", svc.upload.FileName)
	assert.Equal(t, []byte("img"), svc.upload.Data)
	assert.Equal(t, "Alice", svc.name)

	var resp dto.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.IsNewPerson)
	assert.Equal(t, "persons/a/1.jpg", resp.ImagePath)
	assert.Equal(t, id, *resp.PersonID)
}

func TestUpload_UnresolvedIsStillOK(t *testing.T) {
	svc := &fakeService{outcome: &models.Outcome{Message: recognition.MsgNoFace}}

	rec := serve(newFaceEngine(svc), multipartUpload(t, "x.png", []byte("img"), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, recognition.MsgNoFace, resp.Message)
	assert.Empty(t, svc.name)
}

func TestUpload_BodyLimit(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantStatus int
		wantCalled bool
	}{
		{name: "within limit", size: testMaxUpload - 1024, wantStatus: http.StatusOK, wantCalled: true},
		{name: "over limit", size: 4 * testMaxUpload, wantStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{outcome: &models.Outcome{Success: true, FacesFound: 1}}

			rec := serve(newFaceEngine(svc), multipartUpload(t, "big.jpg", bytes.Repeat([]byte{0xff}, tt.size), ""))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, svc.upload.Data != nil)
			if !tt.wantCalled {
				var body dto.ErrorResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "File size exceeds maximum allowed", body.Error)
			}
		})
	}
}

func TestUpload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		err     error
		want    int
		wantMsg string
	}{
		{
			name:    "missing file",
			req:     func(t *testing.T) *http.Request { return multipartUpload(t, "", nil, "Bob") },
			want:    http.StatusBadRequest,
			wantMsg: "No file provided",
		},
		{
			name:    "validation",
			req:     func(t *testing.T) *http.Request { return multipartUpload(t, "a.exe", []byte("x"), "") },
			err:     &recognition.ValidationError{Reason: "File type .exe not allowed"},
			want:    http.StatusBadRequest,
			wantMsg: "File type .exe not allowed",
		},
		{
			name:    "storage",
			req:     func(t *testing.T) *http.Request { return multipartUpload(t, "a.jpg", []byte("x"), "") },
			err:     fmt.Errorf("%w: save image: timeout", recognition.ErrStorage),
			want:    http.StatusInternalServerError,
			wantMsg: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newFaceEngine(&fakeService{processErr: tt.err}), tt.req(t))

			assert.Equal(t, tt.want, rec.Code)
			var resp dto.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}

func TestPersons(t *testing.T) {
	alice := models.Person{ID: uuid.New(), Name: "Alice", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	bob := models.Person{ID: uuid.New(), Name: "Bob"}
	svc := &fakeService{
		persons: []models.Person{alice, bob},
		signatures: []models.Signature{
			{ID: uuid.New(), PersonID: alice.ID, Vector: []float32{0.1, 0.2}, ImageLocator: "persons/a/2.jpg"},
			{ID: uuid.New(), PersonID: alice.ID, ImageLocator: "persons/a/1.jpg"},
			{ID: uuid.New(), PersonID: bob.ID, ImageLocator: "persons/b/1.jpg"},
		},
	}
	r := newFaceEngine(svc)

	t.Run("list", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/faces/persons", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.PersonListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, "2024-01-02T03:04:05Z", resp.Persons[0].CreatedAt)
	})

	t.Run("get by name", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/faces/persons/Bob", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp dto.PersonResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, bob.ID, resp.ID)
	})

	t.Run("unknown name", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/faces/persons/Carol", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("signatures omit vectors", func(t *testing.T) {
		rec := serve(r, httptest.NewRequest(http.MethodGet, "/faces/persons/Alice/signatures", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "vector")
		var resp dto.SignatureListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Total)
		assert.Equal(t, "persons/a/2.jpg", resp.Signatures[0].ImageLocator)
	})
}

func TestDeletePerson(t *testing.T) {
	known := models.Person{ID: uuid.New(), Name: "Alice"}

	tests := []struct {
		name string
		id   string
		err  error
		want int
	}{
		{name: "deleted", id: known.ID.String(), want: http.StatusOK},
		{name: "unknown", id: uuid.NewString(), want: http.StatusNotFound},
		{name: "bad id", id: "nope", want: http.StatusBadRequest},
		{name: "storage error", id: known.ID.String(), err: errors.New("db down"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{persons: []models.Person{known}, err: tt.err}
			rec := serve(newFaceEngine(svc), httptest.NewRequest(http.MethodDelete, "/faces/persons/"+tt.id, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

type pingFunc func() error

func (f pingFunc) Ping() error { return f() }

type ctxPingFunc func(context.Context) error

func (f ctxPingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestReadyz(t *testing.T) {
	ok := ctxPingFunc(func(context.Context) error { return nil })
	down := ctxPingFunc(func(context.Context) error { return errors.New("connection refused") })
	natsOK := pingFunc(func() error { return nil })

	tests := []struct {
		name  string
		db    ContextPinger
		minio ContextPinger
		want  int
	}{
		{name: "ready", db: ok, minio: ok, want: http.StatusOK},
		{name: "minio down", db: ok, minio: down, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			r := gin.New()
			h := NewSystemHandler(tt.db, tt.minio, natsOK)
			r.GET("/readyz", h.Readyz)
			r.GET("/healthz", h.Healthz)

			rec := serve(r, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, tt.want, rec.Code)

			var body struct {
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "ok", body.Checks["nats"])

			assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
		})
	}
}
