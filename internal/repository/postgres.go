package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/UnknownOlympus/cartographer/internal/models"
)

// FetchTasksForGeocoding retrieves a list of tasks that require reverse geocoding.
// It returns tasks that have coordinates but no address, are not closed, and have fewer
// than MaxGeocodingAttempts failed attempts. The results are ordered by creation date and
// limited to the specified count.
//
// Parameters:
// - ctx: The context for the operation, allowing for cancellation and timeout.
// - limit: The maximum number of tasks to retrieve.
//
// Returns:
// - A slice of models.Task containing the tasks that match the criteria.
// - An error if the query fails or if there is an issue scanning the results.
func (r *Repository) FetchTasksForGeocoding(ctx context.Context, limit int) ([]models.Task, error) {
	var tasks []models.Task
	query := `
		SELECT task_id, latitude, longitude
		FROM public.tasks
		WHERE
			address IS NULL
			AND latitude IS NOT NULL
			AND longitude IS NOT NULL
			AND is_closed = false
			AND geocoding_attempts < $2
		ORDER BY created_at ASC
		LIMIT $1;
	`

	rows, err := r.db.Query(ctx, query, limit, MaxGeocodingAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks without address: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var task models.Task
		if errScan := rows.Scan(&task.ID, &task.Coordinates.Latitude, &task.Coordinates.Longitude); errScan != nil {
			return nil, fmt.Errorf("failed to scan task without address: %w", errScan)
		}
		r.log.DebugContext(ctx, "A new task without address has been received.",
			"ID", task.ID, "lat", task.Coordinates.Latitude, "lon", task.Coordinates.Longitude)
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read row: %w", err)
	}

	return tasks, nil
}

// UpdateTaskAddress stores the resolved address of a task identified by taskID.
// Address components are stored as a JSON object and the geocoding_error field is reset to NULL.
func (r *Repository) UpdateTaskAddress(ctx context.Context, taskID int, address models.Address) error {
	query := `
		UPDATE tasks
		SET
			address = $1,
			address_details = $2,
			geocoding_provider = $3,
			geocoding_error = NULL
		WHERE
			task_id = $4;
	`

	components := address.Components
	if components == nil {
		components = map[string]string{}
	}
	details, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("failed to encode address details: %w", err)
	}

	_, err = r.db.Exec(ctx, query, address.DisplayName, string(details), address.Provider, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task address: %w", err)
	}

	return nil
}

// IncrementFailureCount increments the geocoding attempt count for a specific task
// identified by taskID and updates the associated error message. It takes a context
// for managing request-scoped values, cancellation, and deadlines. If the update
// operation fails, it returns an error with additional context.
func (r *Repository) IncrementFailureCount(ctx context.Context, taskID int, errMsg string) error {
	query := `
		UPDATE tasks
		SET
			geocoding_attempts = geocoding_attempts + 1,
			geocoding_error = $1
		WHERE task_id = $2;
	`

	_, err := r.db.Exec(ctx, query, errMsg, taskID)
	if err != nil {
		return fmt.Errorf("failed to update geocoding error and number of attempts: %w", err)
	}

	return nil
}

// MarkGeocodingFailed records an error that repeating the request cannot fix.
// The attempt counter jumps to MaxGeocodingAttempts so the task is not fetched again.
func (r *Repository) MarkGeocodingFailed(ctx context.Context, taskID int, errMsg string) error {
	query := `
		UPDATE tasks
		SET
			geocoding_attempts = $1,
			geocoding_error = $2
		WHERE task_id = $3;
	`

	_, err := r.db.Exec(ctx, query, MaxGeocodingAttempts, errMsg, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task as permanently failed: %w", err)
	}

	return nil
}
