package transfer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
)

// Options tunes the reconciler and the verifier.
type Options struct {
	// MaxConcurrent bounds the number of photos processed at once.
	MaxConcurrent int

	// RetryBudget is how many transient failures a single photo may retry.
	RetryBudget int

	// RetryCooldown is in seconds; the n-th retry waits
	// RetryCooldown * RetryExponent^n.
	RetryCooldown float64
	RetryExponent float64

	// VerifyAttempts is how many times a transferred photo is checked before
	// it is declared absent.
	VerifyAttempts int
	VerifyInterval time.Duration
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxConcurrent:  4,
		RetryBudget:    1,
		RetryCooldown:  0.5,
		RetryExponent:  2,
		VerifyAttempts: 5,
		VerifyInterval: 2 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = d.MaxConcurrent
	}
	if o.RetryBudget < 0 {
		o.RetryBudget = 0
	}
	if o.RetryExponent <= 0 {
		o.RetryExponent = d.RetryExponent
	}
	if o.VerifyAttempts <= 0 {
		o.VerifyAttempts = 1
	}
	return o
}

// ReconcileResult is the outcome of Reconciler.Reconcile.
type ReconcileResult struct {
	Folder model.FolderState

	// Outcomes has one entry per photo within the cap, in input order.
	Outcomes []model.TransferOutcome

	// Warning is a CAPACITY error when the cap had to be clamped.
	Warning error
}

// Reconciler brings a destination folder in line with a named photo set.
type Reconciler struct {
	store  model.Store
	opts   Options
	onItem func(int, model.TransferOutcome)
}

// NewReconciler creates a Reconciler. onItem, if not nil, is called from the
// worker goroutines after each photo is processed.
func NewReconciler(store model.Store, opts Options, onItem func(int, model.TransferOutcome)) *Reconciler {
	return &Reconciler{store: store, opts: opts.withDefaults(), onItem: onItem}
}

// Reconcile ensures folder exists and then, for each photo within the cap,
// transfers it unless it is already present.
//
// Only a failure to create the folder is returned as an error. Per-photo
// failures are recorded in the outcomes and never stop the batch.
//
// Once ctx is done no further photo is started; photos not started are
// reported as not_attempted. Photos already in flight run to completion.
func (r *Reconciler) Reconcile(ctx context.Context, photos []model.NamedPhoto, folder string, c Cap) (ReconcileResult, error) {
	limit, warning := ResolveCap(c, len(photos))
	result := ReconcileResult{Warning: warning}

	state, err := r.ensureFolder(ctx, folder)
	if err != nil {
		return result, err
	}
	result.Folder = state

	outcomes := make([]model.TransferOutcome, limit)
	for i := range outcomes {
		outcomes[i] = model.TransferOutcome{
			FileName: photos[i].FileName,
			SizeType: photos[i].SizeType,
			Status:   model.StatusNotAttempted,
		}
	}

	work := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(r.opts.MaxConcurrent)

	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may have been queued before cancellation.
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = r.process(work, photos[i], folder)
			if r.onItem != nil {
				r.onItem(i, outcomes[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Outcomes = outcomes
	return result, nil
}

func (r *Reconciler) ensureFolder(ctx context.Context, folder string) (model.FolderState, error) {
	var state model.FolderState
	err := newRetrier(r.opts).do(ctx, func(ctx context.Context) error {
		var err error
		state, err = r.store.EnsureFolder(ctx, folder)
		return err
	})
	if err != nil {
		if errors.KindOf(err) == errors.KindUnknown {
			err = errors.Wrap(errors.KindRemote, "ensure folder", err)
		}
		return state, fmt.Errorf("create folder %s: %w", folder, err)
	}
	return state, nil
}

func (r *Reconciler) process(ctx context.Context, photo model.NamedPhoto, folder string) model.TransferOutcome {
	out := model.TransferOutcome{FileName: photo.FileName, SizeType: photo.SizeType}
	path := model.ObjectPath(folder, photo.FileName)
	retry := newRetrier(r.opts)

	var present bool
	err := retry.do(ctx, func(ctx context.Context) error {
		var err error
		present, err = r.store.Exists(ctx, path)
		return err
	})
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("check %s: %w", photo.FileName, err)
		return out
	}
	if present {
		out.Status = model.StatusAlreadyPresent
		return out
	}

	var state model.TransferState
	err = retry.do(ctx, func(ctx context.Context) error {
		var err error
		state, err = r.store.TransferFromURL(ctx, path, photo.SourceURL)
		return err
	})
	switch {
	case err != nil:
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("transfer %s: %w", photo.FileName, err)
	case state != model.TransferAccepted:
		out.Status = model.StatusFailed
		out.Err = errors.Errorf(errors.KindRemote, "transfer", "%s: destination rejected the request", photo.FileName)
	default:
		out.Status = model.StatusTransferred
	}
	return out
}
