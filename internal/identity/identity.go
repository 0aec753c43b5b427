// Package identity defines persons, their enrolled face records and
// enrollment bookkeeping, along with the storage contract the pipelines
// depend on.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPersonNotFound is returned when a person ID or name resolves to
	// nothing.
	ErrPersonNotFound = errors.New("person not found")

	// ErrFaceNotFound is returned when a face ID resolves to nothing.
	ErrFaceNotFound = errors.New("face not found")

	// ErrEnrollmentNotFound is returned when an enrollment ID resolves to
	// nothing.
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)

// Person is an enrolled identity.
type Person struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FaceRecord is one enrolled face capture. ID doubles as the external ID in
// the vector index.
type FaceRecord struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	Embedding []float32 `json:"-"`
	BBox      []float64 `json:"bbox,omitempty"`
	Quality   float64   `json:"quality"`
	CreatedAt time.Time `json:"created_at"`
}

// Status is the enrollment state machine. Transitions move strictly
// forward: pending -> processing -> completed or failed, both terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CanTransitionTo reports whether moving to next is a legal transition.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EnrollmentRecord tracks one enrollment batch.
type EnrollmentRecord struct {
	ID        string    `json:"id"`
	PersonID  string    `json:"person_id"`
	Status    Status    `json:"status"`
	FaceCount int       `json:"face_count"`
	Failures  []string  `json:"failures,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PersonStore persists persons. FindPersonByName matches on the normalized
// name form.
type PersonStore interface {
	CreatePerson(ctx context.Context, person *Person) error
	GetPerson(ctx context.Context, id string) (*Person, error)
	FindPersonByName(ctx context.Context, name string) (*Person, error)
	ListPersons(ctx context.Context) ([]Person, error)
	DeletePerson(ctx context.Context, id string) error
}

// FaceStore persists face records.
type FaceStore interface {
	AddFace(ctx context.Context, face *FaceRecord) error
	GetFace(ctx context.Context, id string) (*FaceRecord, error)
	FacesByPerson(ctx context.Context, personID string) ([]FaceRecord, error)
	AllFaces(ctx context.Context) ([]FaceRecord, error)
	DeleteFace(ctx context.Context, id string) error
}

// EnrollmentStore persists enrollment bookkeeping.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, record *EnrollmentRecord) error
	UpdateEnrollment(ctx context.Context, record *EnrollmentRecord) error
	GetEnrollment(ctx context.Context, id string) (*EnrollmentRecord, error)
}

// Store is the full storage contract the pipelines consume.
type Store interface {
	PersonStore
	FaceStore
	EnrollmentStore
}
