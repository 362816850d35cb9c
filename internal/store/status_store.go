package store

import (
	"context"

	"relentless-relay/internal/models"
)

// StatusStore persists run status per job: the latest value plus a short history.
type StatusStore interface {
	SetStatus(ctx context.Context, status models.RunStatus) error
	GetStatus(ctx context.Context, jobID string) (models.RunStatus, bool, error)
	History(ctx context.Context, jobID string, limit int) ([]models.RunStatus, error)
}
