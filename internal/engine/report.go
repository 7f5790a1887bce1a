package engine

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/handiism/photo-mirror/internal/model"
)

// Report describes a finished run. Run always returns one, even when it
// stops early.
type Report struct {
	Job Job

	// Account is the resolved account id; it may differ from Job.Account
	// when a screen name was given.
	Account string
	Folder  string

	Started  time.Time
	Finished time.Time

	Tally model.Tally

	// Plan is the named set within the cap, filled by dry runs.
	Plan []model.NamedPhoto

	Transfers []model.TransferOutcome
	Verifies  []model.VerifyOutcome
	Manifest  model.Manifest

	// Skipped holds DATA_QUALITY errors for records that were not mirrored.
	Skipped []error

	// Warnings holds non-fatal conditions such as a clamped cap.
	Warnings []error

	// Fatal is the error that stopped the run, if any.
	Fatal error

	// Cancelled is set when the run's context ended before it finished.
	Cancelled bool
}

// Duration is how long the run took.
func (r *Report) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Err combines the fatal error with every per-photo failure. It is nil when
// every attempted photo was verified present.
func (r *Report) Err() error {
	var result *multierror.Error
	if r.Fatal != nil {
		result = multierror.Append(result, r.Fatal)
	}
	for _, out := range r.Transfers {
		if out.Status == model.StatusFailed && out.Err != nil {
			result = multierror.Append(result, out.Err)
		}
	}
	for _, out := range r.Verifies {
		if out.Status != model.VerifyPresent && out.Err != nil {
			result = multierror.Append(result, out.Err)
		}
	}
	return result.ErrorOrNil()
}

// OK reports whether the run finished without fatal errors, failures or
// cancellation.
func (r *Report) OK() bool {
	return !r.Cancelled && r.Err() == nil
}
