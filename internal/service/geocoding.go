package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/UnknownOlympus/cartographer/internal/geocoding"
	"github.com/UnknownOlympus/cartographer/internal/metrics"
	"github.com/UnknownOlympus/cartographer/internal/models"
	"github.com/UnknownOlympus/cartographer/internal/nominatim"
	"github.com/UnknownOlympus/cartographer/internal/repository"
)

const taskLimit = 100

// GeocodingService attaches addresses to tasks that only have coordinates.
// It polls the repository, fans tasks out to a fixed pool of workers and
// records the outcome of each reverse lookup.
type GeocodingService struct {
	log          *slog.Logger         // Logger for logging service activities
	repo         repository.Interface // Interface for data repository access
	provider     geocoding.Provider   // Geocoding provider for external geocoding services
	providerName string               // Name of the provider for metrics labeling
	metrics      *metrics.Metrics     // Metrics for tracking service performance
	numWorkers   int                  // Number of concurrent workers for processing
	pollInterval time.Duration        // Interval for polling geocoding updates
}

// NewGeocodingService creates a new instance of GeocodingService.
func NewGeocodingService(
	log *slog.Logger,
	repo repository.Interface,
	provider geocoding.Provider,
	providerName string,
	metrics *metrics.Metrics,
	numWorkers int,
	pollInterval time.Duration,
) *GeocodingService {
	if numWorkers < 1 {
		numWorkers = 1
	}

	return &GeocodingService{
		log:          log,
		repo:         repo,
		provider:     provider,
		providerName: providerName,
		metrics:      metrics,
		numWorkers:   numWorkers,
		pollInterval: pollInterval,
	}
}

// Run starts the geocoding service, which periodically polls for new tasks to geocode.
// It listens for a cancellation signal from the context to gracefully stop the service.
func (gs *GeocodingService) Run(ctx context.Context) {
	ticker := time.NewTicker(gs.pollInterval)
	defer ticker.Stop()

	gs.log.InfoContext(ctx, "Reverse geocoding service started...")

	for {
		select {
		case <-ctx.Done():
			gs.log.InfoContext(ctx, "Reverse geocoding service stopped.")
			return
		case <-ticker.C:
			gs.log.InfoContext(ctx, "Polling for new tasks to geocode...")
			gs.processTask(ctx)
		}
	}
}

// processTask fetches tasks for geocoding from the repository, starts a worker pool to process the tasks,
// and waits for all workers to finish.
func (gs *GeocodingService) processTask(ctx context.Context) {
	tasks, err := gs.repo.FetchTasksForGeocoding(ctx, taskLimit)
	if err != nil {
		gs.log.ErrorContext(ctx, "Failed to fetch tasks", "error", err)
		return
	}
	if len(tasks) == 0 {
		gs.log.InfoContext(ctx, "No tasks to process.")
		return
	}

	gs.log.InfoContext(
		ctx,
		"Found tasks to process. Starting worker pool.",
		"jobs",
		len(tasks),
		"num_workers",
		gs.numWorkers,
	)

	jobs := make(chan models.Task, len(tasks))
	var wgr sync.WaitGroup

	for i := 1; i <= gs.numWorkers; i++ {
		wgr.Add(1)
		go gs.worker(ctx, i, &wgr, jobs)
	}

	for _, task := range tasks {
		jobs <- task
	}
	close(jobs)

	wgr.Wait()
	gs.log.InfoContext(ctx, "Processing batch finished")
}

// worker processes tasks from the jobs channel until it is closed.
func (gs *GeocodingService) worker(ctx context.Context, idx int, wg *sync.WaitGroup, jobs <-chan models.Task) {
	defer wg.Done()
	for task := range jobs {
		if ctx.Err() != nil {
			gs.log.DebugContext(ctx, "Context done, skipping task", "worker", idx, "task", task.ID)
			continue
		}

		gs.metrics.ActiveWorkers.Inc()
		gs.handle(ctx, idx, task)
		gs.metrics.ActiveWorkers.Dec()
	}
}

func (gs *GeocodingService) handle(ctx context.Context, idx int, task models.Task) {
	gs.log.DebugContext(ctx, "Processing task", "worker", idx, "task", task.ID)

	startTime := time.Now()
	address, err := gs.provider.ReverseGeocode(ctx, task.Coordinates)
	gs.metrics.RequestSeconds.WithLabelValues(gs.providerName).Observe(time.Since(startTime).Seconds())

	if err != nil {
		gs.recordFailure(ctx, idx, task, err)
		return
	}

	gs.metrics.TaskProcessed.WithLabelValues("success").Inc()

	if err = gs.repo.UpdateTaskAddress(ctx, task.ID, *address); err != nil {
		gs.log.ErrorContext(
			ctx,
			"Failed to update address for task",
			"worker", idx,
			"task", task.ID,
			"error", err,
		)
		return
	}

	gs.log.DebugContext(ctx, "Worker successfully processed the task", "worker", idx, "task", task.ID)
}

// recordFailure stores the error. Errors that a later attempt cannot fix exhaust the task at once.
func (gs *GeocodingService) recordFailure(ctx context.Context, idx int, task models.Task, geoErr error) {
	kind := errorKind(geoErr)
	gs.metrics.APIErrors.WithLabelValues(kind).Inc()

	var err error
	if isPermanent(geoErr) {
		gs.log.WarnContext(ctx, "Task cannot be geocoded", "worker", idx, "task", task.ID, "kind", kind, "error", geoErr)
		gs.metrics.TaskProcessed.WithLabelValues("exhausted").Inc()
		err = gs.repo.MarkGeocodingFailed(ctx, task.ID, geoErr.Error())
	} else {
		gs.log.ErrorContext(ctx, "Failed to geocode", "worker", idx, "task", task.ID, "kind", kind, "error", geoErr)
		gs.metrics.TaskProcessed.WithLabelValues("failure").Inc()
		err = gs.repo.IncrementFailureCount(ctx, task.ID, geoErr.Error())
	}

	if err != nil {
		gs.log.ErrorContext(
			ctx,
			"Could not record failure for task",
			"worker", idx,
			"task", task.ID,
			"error", err,
		)
	}
}

func errorKind(err error) string {
	var apiErr *nominatim.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Kind.String()
	case errors.Is(err, geocoding.ErrEmptyResponse):
		return "empty"
	default:
		return "other"
	}
}

// isPermanent is true for failures caused by the task itself or by the provider contract,
// as opposed to transient transport or server trouble.
func isPermanent(err error) bool {
	if errors.Is(err, geocoding.ErrEmptyResponse) {
		return true
	}

	var apiErr *nominatim.APIError
	if errors.As(err, &apiErr) {
		return !nominatim.IsRetryable(apiErr)
	}

	return false
}
