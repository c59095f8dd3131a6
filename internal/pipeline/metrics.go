package pipeline

import (
	"sync"
	"time"

	"github.com/lucasnoah/devloop/internal/domain"
)

// Recorder accumulates iteration records and finalizes the run's
// metrics exactly once, on whichever exit path comes first.
type Recorder struct {
	mu      sync.Mutex
	once    sync.Once
	start   time.Time
	metrics *domain.PipelineMetrics
}

// NewRecorder starts a run record at the current time.
func NewRecorder() *Recorder {
	now := time.Now()
	return &Recorder{
		start: now,
		metrics: &domain.PipelineMetrics{
			StartedAt:  now.Format(time.RFC3339),
			Iterations: []*domain.IterationMetrics{},
		},
	}
}

// Append records one terminal iteration. Iterations aborted by
// shutdown before reaching a terminal phase are never appended.
func (r *Recorder) Append(it *domain.IterationMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics.Iterations = append(r.metrics.Iterations, it)
}

// Count returns the number of recorded iterations.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics.Iterations)
}

// Finalize stamps the totals and convergence flag. Idempotent: only
// the first call takes effect; every call returns the finalized record.
func (r *Recorder) Finalize(converged bool) *domain.PipelineMetrics {
	r.once.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		now := time.Now()
		r.metrics.EndedAt = now.Format(time.RFC3339)
		r.metrics.TotalDurationS = domain.RoundSeconds(now.Sub(r.start))
		r.metrics.TotalIterations = len(r.metrics.Iterations)
		r.metrics.Converged = converged
	})
	return r.metrics
}

// Elapsed returns the wall-clock time since the run started.
func (r *Recorder) Elapsed() time.Duration {
	return time.Since(r.start)
}
