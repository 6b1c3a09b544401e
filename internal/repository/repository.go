package repository

import (
	"context"

	"github.com/sakif/collab-playground/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// Filters; empty means any.
	Language  string
	SessionID string
}

// RunRepository is the append-only execution history.
type RunRepository interface {
	Create(ctx context.Context, run *model.Run) error
	GetByID(ctx context.Context, id string) (*model.Run, error)
	List(ctx context.Context, opts ListOptions) ([]model.Run, error)
}
