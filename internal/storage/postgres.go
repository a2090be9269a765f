package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Persons ---

func (s *PostgresStore) CreatePerson(ctx context.Context, name string) (*models.Person, error) {
	p := &models.Person{
		ID:   uuid.New(),
		Name: name,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, name) VALUES ($1, $2) RETURNING created_at, updated_at`,
		p.ID, p.Name,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create person %q: %w", name, models.ErrDuplicateName)
		}
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	return s.getPerson(ctx, `SELECT id, name, created_at, updated_at FROM persons WHERE id = $1`, id)
}

func (s *PostgresStore) GetPersonByName(ctx context.Context, name string) (*models.Person, error) {
	return s.getPerson(ctx, `SELECT id, name, created_at, updated_at FROM persons WHERE name = $1`, name)
}

func (s *PostgresStore) getPerson(ctx context.Context, query string, arg any) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx, query, arg).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM persons ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var persons []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// DeletePerson removes the person; signatures go with it via ON DELETE CASCADE.
func (s *PostgresStore) DeletePerson(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete person: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Signatures ---

// AppendSignature inserts the signature and bumps the owner's updated_at in
// one transaction.
func (s *PostgresStore) AppendSignature(ctx context.Context, personID uuid.UUID, vector []float32, locator string) (*models.Signature, error) {
	sig := &models.Signature{
		ID:           uuid.New(),
		PersonID:     personID,
		Vector:       vector,
		ImageLocator: locator,
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO signatures (id, person_id, vector, image_locator) VALUES ($1, $2, $3, $4) RETURNING created_at`,
			sig.ID, sig.PersonID, pgvector.NewVector(vector), sig.ImageLocator,
		).Scan(&sig.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert signature: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE persons SET updated_at = now() WHERE id = $1`, personID); err != nil {
			return fmt.Errorf("touch person: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append signature: %w", err)
	}
	return sig, nil
}

// ListAllSignatures returns every signature with its vector, oldest first.
func (s *PostgresStore) ListAllSignatures(ctx context.Context) ([]models.Signature, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, person_id, vector, image_locator, created_at FROM signatures ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var sigs []models.Signature
	for rows.Next() {
		var sig models.Signature
		var vec pgvector.Vector
		if err := rows.Scan(&sig.ID, &sig.PersonID, &vec, &sig.ImageLocator, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sig.Vector = vec.Slice()
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// ListSignatures returns signature metadata for one person, newest first.
// Vectors are not loaded.
func (s *PostgresStore) ListSignatures(ctx context.Context, personID uuid.UUID) ([]models.Signature, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, person_id, image_locator, created_at FROM signatures WHERE person_id = $1 ORDER BY created_at DESC`,
		personID)
	if err != nil {
		return nil, fmt.Errorf("list person signatures: %w", err)
	}
	defer rows.Close()

	var sigs []models.Signature
	for rows.Next() {
		var sig models.Signature
		if err := rows.Scan(&sig.ID, &sig.PersonID, &sig.ImageLocator, &sig.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

// PruneSignatures deletes all but the newest keep signatures of a person and
// returns the image locators of the deleted rows.
func (s *PostgresStore) PruneSignatures(ctx context.Context, personID uuid.UUID, keep int) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	rows, err := s.pool.Query(ctx,
		`DELETE FROM signatures
		 WHERE id IN (
		     SELECT id FROM signatures
		     WHERE person_id = $1
		     ORDER BY created_at DESC, id DESC
		     OFFSET $2
		 )
		 RETURNING image_locator`,
		personID, keep)
	if err != nil {
		return nil, fmt.Errorf("prune signatures: %w", err)
	}
	defer rows.Close()

	var locators []string
	for rows.Next() {
		var loc string
		if err := rows.Scan(&loc); err != nil {
			return nil, fmt.Errorf("scan pruned locator: %w", err)
		}
		locators = append(locators, loc)
	}
	return locators, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
