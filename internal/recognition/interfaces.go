package recognition

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
)

// Extractor turns image bytes into the signature of the most prominent face.
// found is false when no face was detected.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (vector []float32, found bool, err error)
}

// IdentityStore is the authoritative store for persons and signatures.
// Lookups return (nil, nil) when the row does not exist.
type IdentityStore interface {
	CreatePerson(ctx context.Context, name string) (*models.Person, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	GetPersonByName(ctx context.Context, name string) (*models.Person, error)
	ListPersons(ctx context.Context) ([]models.Person, error)
	// DeletePerson removes the person and its signatures; false if absent.
	DeletePerson(ctx context.Context, id uuid.UUID) (bool, error)
	AppendSignature(ctx context.Context, personID uuid.UUID, vector []float32, locator string) (*models.Signature, error)
	ListAllSignatures(ctx context.Context) ([]models.Signature, error)
	ListSignatures(ctx context.Context, personID uuid.UUID) ([]models.Signature, error)
	// PruneSignatures keeps the newest keep signatures of a person and
	// returns the image locators of the removed ones.
	PruneSignatures(ctx context.Context, personID uuid.UUID, keep int) ([]string, error)
}

// BlobStore keeps original images grouped by namespace.
type BlobStore interface {
	Save(ctx context.Context, data []byte, namespace, ext string) (locator string, err error)
	Delete(ctx context.Context, locator string) error
	DeleteNamespace(ctx context.Context, namespace string) (bool, error)
}

// Cache is a byte-level key/value cache with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
