package history

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/raine/itemcheck/internal/router"
	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the number of pending saves a Recorder holds before it
// starts dropping.
const DefaultBuffer = 64

type job struct {
	ownerID string
	result  router.UnifiedResult
}

// Recorder saves results to a Store in the background. Callers never wait
// on the store and never see its errors.
type Recorder struct {
	store Store
	jobs  chan job

	mu      sync.RWMutex
	closed  bool
	running atomic.Bool
	done    chan struct{}
}

func NewRecorder(store Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Recorder{
		store: store,
		jobs:  make(chan job, buffer),
		done:  make(chan struct{}),
	}
}

// Record queues result for ownerID. It returns immediately; when the buffer
// is full or the recorder is closed the result is dropped with a warning.
func (r *Recorder) Record(ownerID string, result router.UnifiedResult) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		log.Warn().Str("ownerId", ownerID).Msg("history recorder closed, dropping result")
		return
	}
	select {
	case r.jobs <- job{ownerID: ownerID, result: result}:
	default:
		log.Warn().Str("ownerId", ownerID).Int("buffer", cap(r.jobs)).Msg("history buffer full, dropping result")
	}
}

// Run saves queued results until ctx is cancelled or Close is called, then
// saves whatever is still queued and returns. Run must be called at most
// once.
func (r *Recorder) Run(ctx context.Context) error {
	r.running.Store(true)
	defer close(r.done)

	errs := make(chan error)
	logged := make(chan struct{})
	go func() {
		defer close(logged)
		for err := range errs {
			log.Error().Err(err).Msg("failed to save history entry")
		}
	}()
	defer func() {
		close(errs)
		<-logged
	}()

	log.Info().Int("buffer", cap(r.jobs)).Msg("history recorder started")
	for {
		select {
		case <-ctx.Done():
			r.stop()
			drainCtx := context.WithoutCancel(ctx)
			for j := range r.jobs {
				r.save(drainCtx, j, errs)
			}
			log.Info().Msg("history recorder stopped")
			return nil
		case j, ok := <-r.jobs:
			if !ok {
				log.Info().Msg("history recorder stopped")
				return nil
			}
			r.save(ctx, j, errs)
		}
	}
}

// Close stops accepting results and, if Run is active, waits until the
// pending ones are saved.
func (r *Recorder) Close() {
	r.stop()
	if r.running.Load() {
		<-r.done
		return
	}
	if n := len(r.jobs); n > 0 {
		log.Warn().Int("pending", n).Msg("history recorder closed before running, discarding results")
	}
}

func (r *Recorder) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	close(r.jobs)
}

func (r *Recorder) save(ctx context.Context, j job, errs chan<- error) {
	id, err := r.store.Append(ctx, j.ownerID, j.result)
	if err != nil {
		errs <- fmt.Errorf("append history for owner %s: %w", j.ownerID, err)
		return
	}
	log.Debug().Str("ownerId", j.ownerID).Str("entryId", id).Str("analysisType", string(j.result.AnalysisType)).Msg("history entry saved")
}
