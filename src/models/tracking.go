package models

import "time"

// -----------------------------------------------------------------------------
// Tracking Jobs
// -----------------------------------------------------------------------------

// Tracking job statuses.
const (
	JobActive = "active"
	JobError  = "error"
)

// MTrackingJob is one scheduled aggregation job covering a list of tokens.
type MTrackingJob struct {
	ID              string    `json:"job_id"`
	Mints           []string  `json:"mints"`
	IntervalSeconds int       `json:"interval_seconds"`
	MaxAccounts     int       `json:"max_accounts"`
	Status          string    `json:"status"`
	NextRunAt       time.Time `json:"next_run_at"`
	LastRunAt       time.Time `json:"last_run_at"`
	RunCount        int       `json:"run_count"`
	SuccessCount    int       `json:"success_count"`
	ErrorCount      int       `json:"error_count"`
	LastError       string    `json:"last_error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
