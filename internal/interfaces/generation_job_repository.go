package interfaces

import (
	"context"
	"time"

	"campaign-server/internal/models"

	"github.com/google/uuid"
)

// GenerationJobRepository defines the interface for the append-only generation
// job log. The current state of a subject is its latest job row.
type GenerationJobRepository interface {
	// Create inserts a new job row. A re-trigger after a terminal status must
	// create a new row, never reuse an existing one.
	Create(ctx context.Context, querier DBTX, job *models.GenerationJob) error

	// GetCurrent retrieves the latest job row for a subject.
	// Returns models.ErrNotFound when the subject has no jobs.
	GetCurrent(ctx context.Context, querier DBTX, subjectID uuid.UUID, kind models.GenerationKind) (*models.GenerationJob, error)

	// ApplyTransition moves the latest job of the subject to the next status
	// under a row lock. The same status twice is an idempotent no-op; an edge
	// the state machine forbids returns models.ErrStateConflict and leaves the
	// row untouched. startedAt/completedAt are set exactly once.
	ApplyTransition(ctx context.Context, querier DBTX, subjectID uuid.UUID, kind models.GenerationKind, next models.GenerationStatus, lastError *string) (*models.GenerationJob, error)

	// ListBySubject returns the full job history of a subject, newest first.
	ListBySubject(ctx context.Context, querier DBTX, subjectID uuid.UUID, kind models.GenerationKind, limit int) ([]*models.GenerationJob, error)
}

// SessionMessageRepository defines storage for session messages. Inserting the
// first message must go through the session initializer's serializable path.
type SessionMessageRepository interface {
	CountBySession(ctx context.Context, querier DBTX, sessionID uuid.UUID) (int64, error)
	Insert(ctx context.Context, querier DBTX, msg *models.SessionMessage) error
	ListBySession(ctx context.Context, querier DBTX, sessionID uuid.UUID) ([]*models.SessionMessage, error)
}

// LocationCache is the local read-through projection of character locations.
// The remote gamemaster service is the sole writer of truth; the cache must
// only be written after the remote acknowledged the value.
type LocationCache interface {
	Get(ctx context.Context, campaignID, characterID uuid.UUID) (string, error)
	Set(ctx context.Context, campaignID, characterID uuid.UUID, location string, ttl time.Duration) error
	SetAll(ctx context.Context, campaignID uuid.UUID, locations map[uuid.UUID]string, ttl time.Duration) error
	Delete(ctx context.Context, campaignID, characterID uuid.UUID) error
}
