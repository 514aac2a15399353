package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"token-observer/src/interfaces"
	"token-observer/src/logger"
	"token-observer/src/models"
)

// -----------------------------------------------------------------------------
// TrackingRunner
// -----------------------------------------------------------------------------

// TrackingRunner periodically recomputes metric bundles for registered jobs.
// One ticker drives all jobs; each due job runs its mints sequentially so a
// large job cannot starve the provider budget of the live path.
type TrackingRunner struct {
	Config     *models.MConfig
	Aggregator interfaces.IAggregator
	Logger     *logger.Logger

	mu   sync.Mutex
	jobs map[string]*models.MTrackingJob

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// -----------------------------------------------------------------------------

func NewTrackingRunner(cfg *models.MConfig, agg interfaces.IAggregator, log *logger.Logger) *TrackingRunner {
	return &TrackingRunner{
		Config:     cfg,
		Aggregator: agg,
		Logger:     log,
		jobs:       make(map[string]*models.MTrackingJob),
		done:       make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------

// AddJob registers a recurring recompute job and returns its id. The first
// run is scheduled one full interval out.
func (r *TrackingRunner) AddJob(mints []string, intervalSeconds int, maxAccounts int) string {
	if intervalSeconds <= 0 {
		intervalSeconds = r.Config.Tracking.CheckIntervalSeconds
	}
	if maxAccounts <= 0 {
		maxAccounts = r.Config.Tracking.MaxAccountsDefault
	}

	job := &models.MTrackingJob{
		ID:              uuid.NewString(),
		Mints:           append([]string(nil), mints...),
		IntervalSeconds: intervalSeconds,
		MaxAccounts:     maxAccounts,
		Status:          models.JobActive,
		NextRunAt:       time.Now().Add(time.Duration(intervalSeconds) * time.Second),
		CreatedAt:       time.Now(),
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.Logger.Info("Registered tracking job %s for %d token(s) every %ds", job.ID, len(mints), intervalSeconds)
	return job.ID
}

// -----------------------------------------------------------------------------

func (r *TrackingRunner) RemoveJob(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[id]; !ok {
		return false
	}
	delete(r.jobs, id)
	return true
}

// -----------------------------------------------------------------------------

// Jobs returns a stable-ordered copy of all registered jobs.
func (r *TrackingRunner) Jobs() []models.MTrackingJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.MTrackingJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// -----------------------------------------------------------------------------

func (r *TrackingRunner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	interval := time.Duration(r.Config.Tracking.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.runDueJobs()
			}
		}
	}()
}

// -----------------------------------------------------------------------------

func (r *TrackingRunner) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

// -----------------------------------------------------------------------------

func (r *TrackingRunner) runDueJobs() {
	now := time.Now()

	r.mu.Lock()
	due := make([]*models.MTrackingJob, 0)
	for _, job := range r.jobs {
		if job.Status == models.JobActive && !job.NextRunAt.After(now) {
			due = append(due, job)
		}
	}
	r.mu.Unlock()

	for _, job := range due {
		r.runJob(job)
	}
}

// -----------------------------------------------------------------------------

func (r *TrackingRunner) runJob(job *models.MTrackingJob) {
	failures := 0
	for _, mint := range job.Mints {
		if r.ctx.Err() != nil {
			return
		}
		resp := r.Aggregator.Compute(r.ctx, mint)
		if resp.SuccessRate < 0.5 {
			failures++
			r.Logger.Warning("Job %s: %s degraded (success rate %.2f)", job.ID, mint, resp.SuccessRate)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	job.RunCount++
	job.LastRunAt = time.Now()
	job.NextRunAt = time.Now().Add(time.Duration(job.IntervalSeconds) * time.Second)
	if failures == len(job.Mints) && len(job.Mints) > 0 {
		job.ErrorCount++
		job.LastError = "all tokens degraded"
		job.Status = models.JobError
	} else {
		job.SuccessCount++
		job.Status = models.JobActive
		job.LastError = ""
	}
}
