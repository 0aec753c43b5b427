//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/faceid/internal/identity"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}
	if container == nil {
		t.Skip("Docker not available, skipping integration test")
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(Config{URL: dbURL, MaxOpenConns: 5, MaxIdleConns: 2})
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}

	return pool, cleanup
}

func testEmbedding() []float32 {
	embedding := make([]float32, 512)
	for i := range embedding {
		embedding[i] = float32(i) / 512.0
	}
	return embedding
}

func TestStore(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	store := NewStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	person := &identity.Person{ID: uuid.NewString(), Name: "Jan Novák", CreatedAt: now}

	t.Run("CreateAndGetPerson", func(t *testing.T) {
		if err := store.CreatePerson(ctx, person); err != nil {
			t.Fatalf("create person failed: %v", err)
		}

		got, err := store.GetPerson(ctx, person.ID)
		if err != nil {
			t.Fatalf("get person failed: %v", err)
		}
		if got.Name != "Jan Novák" {
			t.Errorf("unexpected name %q", got.Name)
		}
	})

	t.Run("FindPersonByNormalizedName", func(t *testing.T) {
		got, err := store.FindPersonByName(ctx, "jan-novak")
		if err != nil {
			t.Fatalf("find by name failed: %v", err)
		}
		if got.ID != person.ID {
			t.Errorf("expected %s, got %s", person.ID, got.ID)
		}

		if _, err := store.FindPersonByName(ctx, "nobody"); !errors.Is(err, identity.ErrPersonNotFound) {
			t.Errorf("expected ErrPersonNotFound, got %v", err)
		}
	})

	face := &identity.FaceRecord{
		ID:        uuid.NewString(),
		PersonID:  person.ID,
		Embedding: testEmbedding(),
		BBox:      []float64{10, 20, 110, 140},
		Quality:   0.85,
		CreatedAt: now,
	}

	t.Run("AddAndGetFace", func(t *testing.T) {
		if err := store.AddFace(ctx, face); err != nil {
			t.Fatalf("add face failed: %v", err)
		}

		got, err := store.GetFace(ctx, face.ID)
		if err != nil {
			t.Fatalf("get face failed: %v", err)
		}
		if len(got.Embedding) != 512 {
			t.Errorf("expected 512-dim embedding, got %d", len(got.Embedding))
		}
		if got.Quality != 0.85 {
			t.Errorf("unexpected quality %f", got.Quality)
		}
		if len(got.BBox) != 4 {
			t.Errorf("unexpected bbox %v", got.BBox)
		}
	})

	t.Run("FacesByPerson", func(t *testing.T) {
		faces, err := store.FacesByPerson(ctx, person.ID)
		if err != nil {
			t.Fatalf("faces by person failed: %v", err)
		}
		if len(faces) != 1 {
			t.Fatalf("expected 1 face, got %d", len(faces))
		}
	})

	t.Run("Enrollment", func(t *testing.T) {
		record := &identity.EnrollmentRecord{
			ID:        uuid.NewString(),
			PersonID:  person.ID,
			Status:    identity.StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := store.CreateEnrollment(ctx, record); err != nil {
			t.Fatalf("create enrollment failed: %v", err)
		}

		record.Status = identity.StatusCompleted
		record.FaceCount = 1
		record.Failures = []string{"image 2: no face detected in image"}
		record.UpdatedAt = time.Now().UTC()
		if err := store.UpdateEnrollment(ctx, record); err != nil {
			t.Fatalf("update enrollment failed: %v", err)
		}

		got, err := store.GetEnrollment(ctx, record.ID)
		if err != nil {
			t.Fatalf("get enrollment failed: %v", err)
		}
		if got.Status != identity.StatusCompleted || got.FaceCount != 1 {
			t.Errorf("unexpected record %+v", got)
		}
		if len(got.Failures) != 1 {
			t.Errorf("expected 1 failure reason, got %d", len(got.Failures))
		}
	})

	t.Run("DeleteFace", func(t *testing.T) {
		if err := store.DeleteFace(ctx, face.ID); err != nil {
			t.Fatalf("delete face failed: %v", err)
		}
		if _, err := store.GetFace(ctx, face.ID); !errors.Is(err, identity.ErrFaceNotFound) {
			t.Errorf("expected ErrFaceNotFound, got %v", err)
		}
	})

	t.Run("DeletePersonCascades", func(t *testing.T) {
		if err := store.DeletePerson(ctx, person.ID); err != nil {
			t.Fatalf("delete person failed: %v", err)
		}
		if _, err := store.GetPerson(ctx, person.ID); !errors.Is(err, identity.ErrPersonNotFound) {
			t.Errorf("expected ErrPersonNotFound, got %v", err)
		}
	})
}
