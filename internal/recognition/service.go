package recognition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/match"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
)

// Outcome messages.
const (
	MsgNoFace          = "no face detected"
	MsgRegistered      = "registered"
	MsgNoGallery       = "no registered faces"
	MsgNotRecognized   = "face not recognized"
	MsgPersonNotFound  = "person record not found"
	MsgRecognized      = "recognized"
	pathRegister       = "register"
	pathIdentify       = "identify"
	resultNoFace       = "no_face"
	resultEmptyGallery = "empty_gallery"
	resultNoMatch      = "no_match"
	resultOrphan       = "orphan_signature"
	resultError        = "error"
)

// Options tune the resolution policy.
type Options struct {
	// Tolerance is used as given; zero accepts exact matches only.
	Tolerance         float64
	CacheTTL          time.Duration
	MaxUploadSize     int64
	AllowedExtensions []string
	// MaxSignaturesPerPerson caps stored signatures; 0 keeps all.
	MaxSignaturesPerPerson int
	Reenroll               bool
}

// OptionsFromConfig maps the recognition config section to service options.
func OptionsFromConfig(cfg config.RecognitionConfig) Options {
	return Options{
		Tolerance:              cfg.FaceTolerance(),
		CacheTTL:               cfg.CacheTTL,
		MaxUploadSize:          cfg.MaxUploadSize,
		AllowedExtensions:      cfg.AllowedExtensions,
		MaxSignaturesPerPerson: cfg.MaxSignaturesPerPerson,
		Reenroll:               cfg.Reenroll(),
	}
}

// Upload is a file submitted at a boundary.
type Upload struct {
	FileName string
	Data     []byte
}

// Service decides whether an image registers a new observation of a named
// person or identifies an existing one.
type Service struct {
	store     IdentityStore
	blobs     BlobStore
	extractor Extractor
	gallery   *gallery
	opts      Options
	log       *slog.Logger
}

// NewService wires the collaborators. cache may be nil to disable caching.
func NewService(store IdentityStore, blobs BlobStore, extractor Extractor, cache Cache, opts Options) *Service {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 300 * time.Second
	}
	log := slog.Default().With("component", "recognition")
	return &Service{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		gallery:   &gallery{cache: cache, ttl: opts.CacheTTL, log: log},
		opts:      opts,
		log:       log,
	}
}

// Process validates an upload and resolves it.
func (s *Service) Process(ctx context.Context, up Upload, declaredName string) (*models.Outcome, error) {
	ext, err := s.Validate(up.FileName, int64(len(up.Data)))
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, up.Data, declaredName, ext)
}

// Resolve registers the face under declaredName when it is non-blank and
// identifies it against the gallery otherwise.
func (s *Service) Resolve(ctx context.Context, image []byte, declaredName string) (*models.Outcome, error) {
	return s.resolve(ctx, image, declaredName, defaultExt)
}

func (s *Service) resolve(ctx context.Context, image []byte, declaredName, ext string) (*models.Outcome, error) {
	name := NormalizeName(declaredName)
	path := pathIdentify
	if name != "" {
		path = pathRegister
	}
	start := time.Now()
	defer func() {
		observability.ResolutionDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	vector, found, err := s.extractor.Extract(ctx, image)
	if err != nil {
		observability.Resolutions.WithLabelValues(path, resultError).Inc()
		return nil, fmt.Errorf("extract signature: %w", err)
	}
	if !found {
		observability.Resolutions.WithLabelValues(path, resultNoFace).Inc()
		return &models.Outcome{Success: false, Message: MsgNoFace}, nil
	}

	var out *models.Outcome
	if path == pathRegister {
		out, err = s.register(ctx, name, vector, image, ext)
	} else {
		out, err = s.identify(ctx, vector, image, ext)
	}
	if err != nil {
		observability.Resolutions.WithLabelValues(path, resultError).Inc()
		return nil, err
	}
	return out, nil
}

func (s *Service) register(ctx context.Context, name string, vector []float32, image []byte, ext string) (*models.Outcome, error) {
	person, isNew, err := s.findOrCreate(ctx, name)
	if err != nil {
		return nil, err
	}

	locator, err := s.enroll(ctx, person, vector, image, ext)
	if err != nil {
		return nil, err
	}
	s.gallery.invalidate(ctx)

	observability.Resolutions.WithLabelValues(pathRegister, MsgRegistered).Inc()
	s.log.Info("person registered", "person", person.Name, "person_id", person.ID, "new", isNew)
	id := person.ID
	return &models.Outcome{
		Success:      true,
		PersonID:     &id,
		PersonName:   person.Name,
		Confidence:   1.0,
		ImageLocator: locator,
		Message:      MsgRegistered,
		IsNewPerson:  isNew,
		FacesFound:   1,
	}, nil
}

func (s *Service) identify(ctx context.Context, vector []float32, image []byte, ext string) (*models.Outcome, error) {
	sigs, err := s.loadGallery(ctx)
	if err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		observability.Resolutions.WithLabelValues(pathIdentify, resultEmptyGallery).Inc()
		return &models.Outcome{Success: false, Message: MsgNoGallery, FacesFound: 1}, nil
	}

	vectors := make([][]float32, len(sigs))
	for i := range sigs {
		vectors[i] = sigs[i].Vector
	}
	res := match.Compare(vectors, vector, s.opts.Tolerance)
	if !res.IsMatch {
		observability.Resolutions.WithLabelValues(pathIdentify, resultNoMatch).Inc()
		s.log.Debug("no match", "distance", res.Distance, "tolerance", s.opts.Tolerance)
		return &models.Outcome{Success: false, Message: MsgNotRecognized, FacesFound: 1}, nil
	}

	matched := sigs[res.BestIndex]
	person, err := s.store.GetPerson(ctx, matched.PersonID)
	if err != nil {
		return nil, fmt.Errorf("%w: get person: %v", ErrStorage, err)
	}
	if person == nil {
		observability.Resolutions.WithLabelValues(pathIdentify, resultOrphan).Inc()
		s.log.Warn("signature references missing person",
			"signature_id", matched.ID, "person_id", matched.PersonID)
		return &models.Outcome{Success: false, Message: MsgPersonNotFound, FacesFound: 1}, nil
	}

	var locator string
	if s.opts.Reenroll {
		locator, err = s.enroll(ctx, person, vector, image, ext)
		if err != nil {
			return nil, err
		}
		s.gallery.invalidate(ctx)
	}

	observability.Resolutions.WithLabelValues(pathIdentify, MsgRecognized).Inc()
	s.log.Info("person recognized", "person", person.Name, "confidence", res.Confidence)
	id := person.ID
	return &models.Outcome{
		Success:      true,
		PersonID:     &id,
		PersonName:   person.Name,
		Confidence:   res.Confidence,
		ImageLocator: locator,
		Message:      MsgRecognized,
		FacesFound:   1,
	}, nil
}

// findOrCreate returns the person with the given name, creating it when
// absent. A concurrent creation of the same name falls back to a re-read.
func (s *Service) findOrCreate(ctx context.Context, name string) (*models.Person, bool, error) {
	person, err := s.store.GetPersonByName(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get person by name: %v", ErrStorage, err)
	}
	if person != nil {
		return person, false, nil
	}

	person, err = s.store.CreatePerson(ctx, name)
	if err == nil {
		return person, true, nil
	}
	if !errors.Is(err, models.ErrDuplicateName) {
		return nil, false, fmt.Errorf("%w: create person: %v", ErrStorage, err)
	}

	person, err = s.store.GetPersonByName(ctx, name)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get person by name: %v", ErrStorage, err)
	}
	if person == nil {
		return nil, false, fmt.Errorf("%w: person %q vanished after duplicate insert", ErrStorage, name)
	}
	return person, false, nil
}

// enroll stores the image under the person's namespace and appends the
// signature that references it.
func (s *Service) enroll(ctx context.Context, person *models.Person, vector []float32, image []byte, ext string) (string, error) {
	locator, err := s.blobs.Save(ctx, image, Namespace(person.ID), ext)
	if err != nil {
		return "", fmt.Errorf("%w: save image: %v", ErrStorage, err)
	}

	if _, err := s.store.AppendSignature(ctx, person.ID, vector, locator); err != nil {
		if derr := s.blobs.Delete(ctx, locator); derr != nil {
			s.log.Warn("remove orphaned image", "locator", locator, "error", derr)
		}
		return "", fmt.Errorf("%w: append signature: %v", ErrStorage, err)
	}

	if s.opts.MaxSignaturesPerPerson > 0 {
		s.prune(ctx, person.ID)
	}
	return locator, nil
}

// prune enforces the per-person signature cap. Failures leave extra rows
// behind and are only logged.
func (s *Service) prune(ctx context.Context, personID uuid.UUID) {
	locators, err := s.store.PruneSignatures(ctx, personID, s.opts.MaxSignaturesPerPerson)
	if err != nil {
		s.log.Warn("prune signatures", "person_id", personID, "error", err)
		return
	}
	for _, loc := range locators {
		if loc == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, loc); err != nil {
			s.log.Warn("delete pruned image", "locator", loc, "error", err)
		}
	}
	if len(locators) > 0 {
		s.log.Debug("pruned signatures", "person_id", personID, "count", len(locators))
	}
}

func (s *Service) loadGallery(ctx context.Context) ([]models.Signature, error) {
	sigs, gen, ok := s.gallery.load(ctx)
	if ok {
		observability.GallerySize.Set(float64(len(sigs)))
		return sigs, nil
	}

	sigs, err := s.store.ListAllSignatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list signatures: %v", ErrStorage, err)
	}
	observability.GallerySize.Set(float64(len(sigs)))
	s.gallery.store(ctx, gen, sigs)
	return sigs, nil
}

// DeletePerson removes a person, its signatures and its stored images.
func (s *Service) DeletePerson(ctx context.Context, id uuid.UUID) error {
	person, err := s.store.GetPerson(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: get person: %v", ErrStorage, err)
	}
	if person == nil {
		return fmt.Errorf("person %s: %w", id, ErrNotFound)
	}

	deleted, err := s.store.DeletePerson(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: delete person: %v", ErrStorage, err)
	}
	if !deleted {
		return fmt.Errorf("person %s: %w", id, ErrNotFound)
	}

	if _, err := s.blobs.DeleteNamespace(ctx, Namespace(id)); err != nil {
		s.log.Warn("delete person images", "person_id", id, "error", err)
	}
	s.gallery.invalidate(ctx)

	s.log.Info("person deleted", "person", person.Name, "person_id", id)
	return nil
}

func (s *Service) ListPersons(ctx context.Context) ([]models.Person, error) {
	persons, err := s.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list persons: %v", ErrStorage, err)
	}
	return persons, nil
}

func (s *Service) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	person, err := s.store.GetPerson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get person: %v", ErrStorage, err)
	}
	if person == nil {
		return nil, fmt.Errorf("person %s: %w", id, ErrNotFound)
	}
	return person, nil
}

func (s *Service) GetPersonByName(ctx context.Context, name string) (*models.Person, error) {
	name = NormalizeName(name)
	person, err := s.store.GetPersonByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: get person by name: %v", ErrStorage, err)
	}
	if person == nil {
		return nil, fmt.Errorf("person %q: %w", name, ErrNotFound)
	}
	return person, nil
}

// ListSignatures returns the signatures of a person, newest first.
func (s *Service) ListSignatures(ctx context.Context, personID uuid.UUID) ([]models.Signature, error) {
	sigs, err := s.store.ListSignatures(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("%w: list signatures: %v", ErrStorage, err)
	}
	return sigs, nil
}

// Namespace is the blob store prefix that holds a person's images.
func Namespace(personID uuid.UUID) string {
	return "persons/" + personID.String() + "/"
}
