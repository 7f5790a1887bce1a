package transfer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
)

// Verification is the result of Verifier.Verify.
type Verification struct {
	// Manifest lists the photos confirmed present, in input order.
	Manifest model.Manifest

	// Outcomes has one entry per attempted photo, in input order.
	Outcomes []model.VerifyOutcome

	Verified  int
	Attempted int
}

// Verifier re-checks the destination after reconciliation.
type Verifier struct {
	store  model.Store
	opts   Options
	onItem func(model.VerifyOutcome)
}

// NewVerifier creates a Verifier. onItem, if not nil, is called from the
// worker goroutines after each photo is checked.
func NewVerifier(store model.Store, opts Options, onItem func(model.VerifyOutcome)) *Verifier {
	return &Verifier{store: store, opts: opts.withDefaults(), onItem: onItem}
}

// Verify checks every attempted photo and builds the manifest from the ones
// found. outcomes[i] must describe photos[i]; photos beyond len(outcomes)
// and photos that were not attempted are ignored.
//
// A transferred photo may still be in flight on the destination side, so it
// is polled up to VerifyAttempts times. Photos reported already present or
// failed are checked once. If ctx ends while polling, the last observation
// stands.
func (v *Verifier) Verify(ctx context.Context, photos []model.NamedPhoto, outcomes []model.TransferOutcome, folder string) Verification {
	var idx []int
	for i, out := range outcomes {
		if out.Status.Attempted() {
			idx = append(idx, i)
		}
	}

	results := make([]model.VerifyOutcome, len(idx))

	var g errgroup.Group
	g.SetLimit(v.opts.MaxConcurrent)
	for slot, i := range idx {
		g.Go(func() error {
			attempts := 1
			if outcomes[i].Status == model.StatusTransferred {
				attempts = v.opts.VerifyAttempts
			}
			results[slot] = v.check(ctx, photos[i], folder, attempts)
			if v.onItem != nil {
				v.onItem(results[slot])
			}
			return nil
		})
	}
	_ = g.Wait()

	ver := Verification{Outcomes: results, Attempted: len(idx)}
	for _, res := range results {
		if res.Status == model.VerifyPresent {
			ver.Verified++
			ver.Manifest.Entries = append(ver.Manifest.Entries, model.ManifestEntry{
				FileName: res.FileName,
				Size:     res.SizeType,
			})
		}
	}
	return ver
}

func (v *Verifier) check(ctx context.Context, photo model.NamedPhoto, folder string, attempts int) model.VerifyOutcome {
	out := model.VerifyOutcome{FileName: photo.FileName, SizeType: photo.SizeType}
	path := model.ObjectPath(folder, photo.FileName)

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !sleep(ctx, v.opts.VerifyInterval) {
			break
		}

		present, err := v.store.Exists(ctx, path)
		if err != nil {
			lastErr = err
			if !errors.IsTransient(err) {
				break
			}
			continue
		}
		lastErr = nil
		if present {
			out.Status = model.VerifyPresent
			return out
		}
	}

	if lastErr != nil {
		out.Status = model.VerifyCheckFailed
		out.Err = fmt.Errorf("verify %s: %w", photo.FileName, lastErr)
		return out
	}
	out.Status = model.VerifyAbsent
	out.Err = errors.Errorf(errors.KindRemote, "verify", "%s not found at destination", photo.FileName)
	return out
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
