// Package mock provides an in-memory identity store for tests and local
// development.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/faceid/internal/identity"
)

// Store keeps everything in maps guarded by one mutex. Values are copied on
// the way in and out so callers cannot mutate stored state.
type Store struct {
	mu          sync.RWMutex
	persons     map[string]identity.Person
	faces       map[string]identity.FaceRecord
	enrollments map[string]identity.EnrollmentRecord
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		persons:     make(map[string]identity.Person),
		faces:       make(map[string]identity.FaceRecord),
		enrollments: make(map[string]identity.EnrollmentRecord),
	}
}

func (s *Store) CreatePerson(_ context.Context, person *identity.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[person.ID] = *person
	return nil
}

func (s *Store) GetPerson(_ context.Context, id string) (*identity.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, identity.ErrPersonNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) FindPersonByName(_ context.Context, name string) (*identity.Person, error) {
	normalized := identity.NormalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.persons {
		if identity.NormalizeName(p.Name) == normalized {
			out := p
			return &out, nil
		}
	}
	return nil, identity.ErrPersonNotFound
}

func (s *Store) ListPersons(_ context.Context) ([]identity.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.Person, 0, len(s.persons))
	for _, p := range s.persons {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) DeletePerson(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.persons[id]; !ok {
		return identity.ErrPersonNotFound
	}
	delete(s.persons, id)
	for faceID, f := range s.faces {
		if f.PersonID == id {
			delete(s.faces, faceID)
		}
	}
	return nil
}

func (s *Store) AddFace(_ context.Context, face *identity.FaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *face
	stored.Embedding = append([]float32(nil), face.Embedding...)
	s.faces[face.ID] = stored
	return nil
}

func (s *Store) GetFace(_ context.Context, id string) (*identity.FaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faces[id]
	if !ok {
		return nil, identity.ErrFaceNotFound
	}
	out := f
	out.Embedding = append([]float32(nil), f.Embedding...)
	return &out, nil
}

func (s *Store) FacesByPerson(_ context.Context, personID string) ([]identity.FaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []identity.FaceRecord
	for _, f := range s.faces {
		if f.PersonID == personID {
			c := f
			c.Embedding = append([]float32(nil), f.Embedding...)
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) AllFaces(_ context.Context) ([]identity.FaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]identity.FaceRecord, 0, len(s.faces))
	for _, f := range s.faces {
		c := f
		c.Embedding = append([]float32(nil), f.Embedding...)
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) DeleteFace(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.faces[id]; !ok {
		return identity.ErrFaceNotFound
	}
	delete(s.faces, id)
	return nil
}

func (s *Store) CreateEnrollment(_ context.Context, record *identity.EnrollmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	stored.Failures = append([]string(nil), record.Failures...)
	s.enrollments[record.ID] = stored
	return nil
}

func (s *Store) UpdateEnrollment(_ context.Context, record *identity.EnrollmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.enrollments[record.ID]; !ok {
		return identity.ErrEnrollmentNotFound
	}
	stored := *record
	stored.Failures = append([]string(nil), record.Failures...)
	s.enrollments[record.ID] = stored
	return nil
}

func (s *Store) GetEnrollment(_ context.Context, id string) (*identity.EnrollmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.enrollments[id]
	if !ok {
		return nil, identity.ErrEnrollmentNotFound
	}
	out := r
	out.Failures = append([]string(nil), r.Failures...)
	return &out, nil
}
