package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceid/internal/identity"
)

// Store implements identity.Store on PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a store over an existing pool.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreatePerson(ctx context.Context, person *identity.Person) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO persons (id, name, normalized_name, created_at)
		VALUES ($1, $2, $3, $4)
	`, person.ID, person.Name, identity.NormalizeName(person.Name), person.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id string) (*identity.Person, error) {
	var p identity.Person
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM persons WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return &p, nil
}

func (s *Store) FindPersonByName(ctx context.Context, name string) (*identity.Person, error) {
	var p identity.Person
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM persons WHERE normalized_name = $1
		ORDER BY created_at LIMIT 1
	`, identity.NormalizeName(name)).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrPersonNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query person by name: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPersons(ctx context.Context) ([]identity.Person, error) {
	rows, err := s.pool.db.QueryContext(ctx, `
		SELECT id, name, created_at FROM persons ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var out []identity.Person
	for rows.Next() {
		var p identity.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return out, nil
}

func (s *Store) DeletePerson(ctx context.Context, id string) error {
	res, err := s.pool.db.ExecContext(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrPersonNotFound
	}
	return nil
}

func (s *Store) AddFace(ctx context.Context, face *identity.FaceRecord) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO faces (id, person_id, embedding, bbox, quality, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, face.ID, face.PersonID, pgvector.NewVector(face.Embedding),
		pq.Array(face.BBox), face.Quality, face.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

func (s *Store) GetFace(ctx context.Context, id string) (*identity.FaceRecord, error) {
	var f identity.FaceRecord
	var embedding pgvector.Vector
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT id, person_id, embedding, bbox, quality, created_at
		FROM faces WHERE id = $1
	`, id).Scan(&f.ID, &f.PersonID, &embedding, pq.Array(&f.BBox), &f.Quality, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrFaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	f.Embedding = embedding.Slice()
	return &f, nil
}

func (s *Store) FacesByPerson(ctx context.Context, personID string) ([]identity.FaceRecord, error) {
	return s.queryFaces(ctx, `
		SELECT id, person_id, embedding, bbox, quality, created_at
		FROM faces WHERE person_id = $1 ORDER BY created_at
	`, personID)
}

func (s *Store) AllFaces(ctx context.Context) ([]identity.FaceRecord, error) {
	return s.queryFaces(ctx, `
		SELECT id, person_id, embedding, bbox, quality, created_at
		FROM faces ORDER BY created_at
	`)
}

func (s *Store) queryFaces(ctx context.Context, query string, args ...any) ([]identity.FaceRecord, error) {
	rows, err := s.pool.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var out []identity.FaceRecord
	for rows.Next() {
		var f identity.FaceRecord
		var embedding pgvector.Vector
		if err := rows.Scan(&f.ID, &f.PersonID, &embedding, pq.Array(&f.BBox), &f.Quality, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = embedding.Slice()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteFace(ctx context.Context, id string) error {
	res, err := s.pool.db.ExecContext(ctx, `DELETE FROM faces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete face: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrFaceNotFound
	}
	return nil
}

func (s *Store) CreateEnrollment(ctx context.Context, record *identity.EnrollmentRecord) error {
	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, person_id, status, face_count, failures, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, record.ID, record.PersonID, record.Status, record.FaceCount,
		pq.Array(record.Failures), record.Error, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *Store) UpdateEnrollment(ctx context.Context, record *identity.EnrollmentRecord) error {
	res, err := s.pool.db.ExecContext(ctx, `
		UPDATE enrollments
		SET status = $2, face_count = $3, failures = $4, error = $5, updated_at = $6
		WHERE id = $1
	`, record.ID, record.Status, record.FaceCount,
		pq.Array(record.Failures), record.Error, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrEnrollmentNotFound
	}
	return nil
}

func (s *Store) GetEnrollment(ctx context.Context, id string) (*identity.EnrollmentRecord, error) {
	var r identity.EnrollmentRecord
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT id, person_id, status, face_count, failures, error, created_at, updated_at
		FROM enrollments WHERE id = $1
	`, id).Scan(&r.ID, &r.PersonID, &r.Status, &r.FaceCount,
		pq.Array(&r.Failures), &r.Error, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query enrollment: %w", err)
	}
	return &r, nil
}
