package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kozaktomas/faceid/internal/identity"
)

// Store implements identity.Store on MySQL.
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
		VALUES (?, ?, ?, ?)
	`, person.ID, person.Name, identity.NormalizeName(person.Name), person.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert person: %w", err)
	}
	return nil
}

func (s *Store) GetPerson(ctx context.Context, id string) (*identity.Person, error) {
	var p identity.Person
	err := s.pool.db.QueryRowContext(ctx, `
		SELECT id, name, created_at FROM persons WHERE id = ?
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
		SELECT id, name, created_at FROM persons WHERE normalized_name = ?
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
	res, err := s.pool.db.ExecContext(ctx, `DELETE FROM persons WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete person: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrPersonNotFound
	}
	return nil
}

func (s *Store) AddFace(ctx context.Context, face *identity.FaceRecord) error {
	var x1, y1, x2, y2 sql.NullFloat64
	if len(face.BBox) >= 4 {
		x1 = sql.NullFloat64{Float64: face.BBox[0], Valid: true}
		y1 = sql.NullFloat64{Float64: face.BBox[1], Valid: true}
		x2 = sql.NullFloat64{Float64: face.BBox[2], Valid: true}
		y2 = sql.NullFloat64{Float64: face.BBox[3], Valid: true}
	}

	_, err := s.pool.db.ExecContext(ctx, `
		INSERT INTO faces (id, person_id, embedding, bbox_x1, bbox_y1, bbox_x2, bbox_y2, quality, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, face.ID, face.PersonID, encodeEmbedding(face.Embedding), x1, y1, x2, y2, face.Quality, face.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

func (s *Store) GetFace(ctx context.Context, id string) (*identity.FaceRecord, error) {
	row := s.pool.db.QueryRowContext(ctx, `
		SELECT id, person_id, embedding, bbox_x1, bbox_y1, bbox_x2, bbox_y2, quality, created_at
		FROM faces WHERE id = ?
	`, id)

	face, err := scanFace(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrFaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query face: %w", err)
	}
	return face, nil
}

func (s *Store) FacesByPerson(ctx context.Context, personID string) ([]identity.FaceRecord, error) {
	return s.queryFaces(ctx, `
		SELECT id, person_id, embedding, bbox_x1, bbox_y1, bbox_x2, bbox_y2, quality, created_at
		FROM faces WHERE person_id = ? ORDER BY created_at
	`, personID)
}

func (s *Store) AllFaces(ctx context.Context) ([]identity.FaceRecord, error) {
	return s.queryFaces(ctx, `
		SELECT id, person_id, embedding, bbox_x1, bbox_y1, bbox_x2, bbox_y2, quality, created_at
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
		face, err := scanFace(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		out = append(out, *face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return out, nil
}

func scanFace(scan func(...any) error) (*identity.FaceRecord, error) {
	var f identity.FaceRecord
	var blob []byte
	var x1, y1, x2, y2 sql.NullFloat64

	if err := scan(&f.ID, &f.PersonID, &blob, &x1, &y1, &x2, &y2, &f.Quality, &f.CreatedAt); err != nil {
		return nil, err
	}

	embedding, err := decodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	f.Embedding = embedding

	if x1.Valid && y1.Valid && x2.Valid && y2.Valid {
		f.BBox = []float64{x1.Float64, y1.Float64, x2.Float64, y2.Float64}
	}
	return &f, nil
}

func (s *Store) DeleteFace(ctx context.Context, id string) error {
	res, err := s.pool.db.ExecContext(ctx, `DELETE FROM faces WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete face: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return identity.ErrFaceNotFound
	}
	return nil
}

func (s *Store) CreateEnrollment(ctx context.Context, record *identity.EnrollmentRecord) error {
	failures, err := json.Marshal(record.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	_, err = s.pool.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, person_id, status, face_count, failures, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.PersonID, record.Status, record.FaceCount,
		string(failures), record.Error, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert enrollment: %w", err)
	}
	return nil
}

func (s *Store) UpdateEnrollment(ctx context.Context, record *identity.EnrollmentRecord) error {
	failures, err := json.Marshal(record.Failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	res, err := s.pool.db.ExecContext(ctx, `
		UPDATE enrollments
		SET status = ?, face_count = ?, failures = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, record.Status, record.FaceCount, string(failures), record.Error, record.UpdatedAt, record.ID)
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
	var failures sql.NullString
	var errMsg sql.NullString

	err := s.pool.db.QueryRowContext(ctx, `
		SELECT id, person_id, status, face_count, failures, error, created_at, updated_at
		FROM enrollments WHERE id = ?
	`, id).Scan(&r.ID, &r.PersonID, &r.Status, &r.FaceCount, &failures, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrEnrollmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query enrollment: %w", err)
	}

	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &r.Failures); err != nil {
			return nil, fmt.Errorf("unmarshal failures: %w", err)
		}
	}
	r.Error = errMsg.String
	return &r, nil
}
