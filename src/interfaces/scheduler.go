package interfaces

import "token-observer/src/models"

// -----------------------------------------------------------------------------
// IJobScheduler manages recurring aggregation jobs.
// -----------------------------------------------------------------------------

type IJobScheduler interface {

	// -----------------------------------------------------------------------------

	// AddJob registers a recurring recompute job and returns its id.
	AddJob(mints []string, intervalSeconds int, maxAccounts int) string

	// -----------------------------------------------------------------------------

	// RemoveJob deletes a job; false when the id is unknown.
	RemoveJob(id string) bool

	// -----------------------------------------------------------------------------

	// Jobs lists all registered jobs.
	Jobs() []models.MTrackingJob
}
