package repository

import (
	"context"
	"log/slog"

	"github.com/UnknownOlympus/cartographer/internal/models"
)

// MaxGeocodingAttempts is the number of failed attempts after which a task is no longer fetched.
const MaxGeocodingAttempts = 5

type Repository struct {
	db  Database
	log *slog.Logger
}

type Interface interface {
	FetchTasksForGeocoding(ctx context.Context, limit int) ([]models.Task, error)
	UpdateTaskAddress(ctx context.Context, taskID int, address models.Address) error
	IncrementFailureCount(ctx context.Context, taskID int, errMsg string) error
	MarkGeocodingFailed(ctx context.Context, taskID int, errMsg string) error
}

// NewRepository creates a new instance of Repository with the provided Database.
// It returns a pointer to the newly created Repository.
func NewRepository(db Database, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}
