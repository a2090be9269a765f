package recognition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
)

var errBoom = errors.New("boom")

type fakeExtractor struct {
	vector []float32
	found  bool
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(_ context.Context, _ []byte) ([]float32, bool, error) {
	f.calls++
	return f.vector, f.found, f.err
}

type fakeStore struct {
	mu         sync.Mutex
	persons    map[uuid.UUID]*models.Person
	sigs       []models.Signature
	listAll    int
	failList   error
	failAppend error
	failGet    error
	// raceOnCreate simulates a concurrent registration winning the insert.
	raceOnCreate bool
	// afterList runs once, between taking the gallery snapshot and returning it.
	afterList func()
	clock        time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons: make(map[uuid.UUID]*models.Person),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) insertPerson(name string) *models.Person {
	now := f.tick()
	p := &models.Person{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	f.persons[p.ID] = p
	return p
}

func (f *fakeStore) CreatePerson(_ context.Context, name string) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceOnCreate {
		f.raceOnCreate = false
		f.insertPerson(name)
		return nil, fmt.Errorf("insert person: %w", models.ErrDuplicateName)
	}
	for _, p := range f.persons {
		if p.Name == name {
			return nil, models.ErrDuplicateName
		}
	}
	p := f.insertPerson(name)
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetPerson(_ context.Context, id uuid.UUID) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	p, ok := f.persons[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetPersonByName(_ context.Context, name string) (*models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, f.failGet
	}
	if f.raceOnCreate {
		return nil, nil
	}
	for _, p := range f.persons {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListPersons(_ context.Context) ([]models.Person, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Person, 0, len(f.persons))
	for _, p := range f.persons {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeStore) DeletePerson(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.persons[id]; !ok {
		return false, nil
	}
	delete(f.persons, id)
	kept := f.sigs[:0]
	for _, s := range f.sigs {
		if s.PersonID != id {
			kept = append(kept, s)
		}
	}
	f.sigs = kept
	return true, nil
}

func (f *fakeStore) AppendSignature(_ context.Context, personID uuid.UUID, vector []float32, locator string) (*models.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend != nil {
		return nil, f.failAppend
	}
	p, ok := f.persons[personID]
	if !ok {
		return nil, errors.New("foreign key violation")
	}
	now := f.tick()
	p.UpdatedAt = now
	sig := models.Signature{
		ID:           uuid.New(),
		PersonID:     personID,
		Vector:       append([]float32(nil), vector...),
		ImageLocator: locator,
		CreatedAt:    now,
	}
	f.sigs = append(f.sigs, sig)
	return &sig, nil
}

func (f *fakeStore) ListAllSignatures(_ context.Context) ([]models.Signature, error) {
	f.mu.Lock()
	f.listAll++
	if f.failList != nil {
		f.mu.Unlock()
		return nil, f.failList
	}
	snapshot := append([]models.Signature(nil), f.sigs...)
	hook := f.afterList
	f.afterList = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return snapshot, nil
}

func (f *fakeStore) ListSignatures(_ context.Context, personID uuid.UUID) ([]models.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Signature
	for i := len(f.sigs) - 1; i >= 0; i-- {
		if f.sigs[i].PersonID == personID {
			out = append(out, f.sigs[i])
		}
	}
	return out, nil
}

func (f *fakeStore) PruneSignatures(_ context.Context, personID uuid.UUID, keep int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var mine []int
	for i, s := range f.sigs {
		if s.PersonID == personID {
			mine = append(mine, i)
		}
	}
	if len(mine) <= keep {
		return nil, nil
	}
	drop := make(map[int]bool)
	var locators []string
	for _, i := range mine[:len(mine)-keep] {
		drop[i] = true
		locators = append(locators, f.sigs[i].ImageLocator)
	}
	kept := make([]models.Signature, 0, len(f.sigs))
	for i, s := range f.sigs {
		if !drop[i] {
			kept = append(kept, s)
		}
	}
	f.sigs = kept
	return locators, nil
}

func (f *fakeStore) signatureCount(personID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sigs {
		if s.PersonID == personID {
			n++
		}
	}
	return n
}

type fakeBlobs struct {
	mu            sync.Mutex
	objects       map[string][]byte
	failSave      error
	failNamespace error
	seq           int
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Save(_ context.Context, data []byte, namespace, ext string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return "", f.failSave
	}
	f.seq++
	key := fmt.Sprintf("%simg%03d%s", namespace, f.seq, ext)
	f.objects[key] = data
	return key, nil
}

func (f *fakeBlobs) Delete(_ context.Context, locator string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, locator)
	return nil
}

func (f *fakeBlobs) DeleteNamespace(_ context.Context, namespace string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNamespace != nil {
		return false, f.failNamespace
	}
	found := false
	for k := range f.objects {
		if strings.HasPrefix(k, namespace) {
			delete(f.objects, k)
			found = true
		}
	}
	return found, nil
}

func (f *fakeBlobs) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}

type fakeCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet error
	failSet error
	deletes int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGet != nil {
		return nil, false, f.failGet
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return f.failSet
	}
	f.sets++
	f.data[key] = value
	return nil
}

func (f *fakeCache) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.data, key)
	return nil
}

func (f *fakeCache) get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.data[key])
}

func (f *fakeCache) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}
