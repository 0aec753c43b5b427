// Package mysql implements the identity store on MySQL/MariaDB for
// deployments without the pgvector extension. Embeddings are stored as
// little-endian float32 blobs and only read back for index rebuilds; the
// database never does similarity math.
package mysql

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Pool manages a MySQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MySQL connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MySQL DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Initialize creates the schema if it does not exist.
func (p *Pool) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS persons (
			id CHAR(36) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			normalized_name VARCHAR(255) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX persons_normalized_name_idx (normalized_name)
		)`,
		`CREATE TABLE IF NOT EXISTS faces (
			id CHAR(36) PRIMARY KEY,
			person_id CHAR(36) NOT NULL,
			embedding MEDIUMBLOB NOT NULL,
			bbox_x1 DOUBLE, bbox_y1 DOUBLE, bbox_x2 DOUBLE, bbox_y2 DOUBLE,
			quality DOUBLE NOT NULL DEFAULT 0,
			created_at DATETIME(6) NOT NULL,
			INDEX faces_person_id_idx (person_id),
			CONSTRAINT faces_person_fk FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			id CHAR(36) PRIMARY KEY,
			person_id CHAR(36) NOT NULL,
			status VARCHAR(16) NOT NULL,
			face_count INT NOT NULL DEFAULT 0,
			failures TEXT,
			error TEXT,
			created_at DATETIME(6) NOT NULL,
			updated_at DATETIME(6) NOT NULL,
			INDEX enrollments_person_id_idx (person_id),
			CONSTRAINT enrollments_person_fk FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE CASCADE
		)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// encodeEmbedding packs a float32 slice as little-endian bytes.
func encodeEmbedding(embedding []float32) []byte {
	out := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// decodeEmbedding unpacks little-endian bytes into a float32 slice.
func decodeEmbedding(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(data))
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}
