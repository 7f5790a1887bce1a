package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/handiism/photo-mirror/internal/catalog"
	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/transfer"
)

// Job says what a run mirrors and where.
type Job struct {
	// Account is an account id or screen name in the source.
	Account string

	// Album is an album id, including system albums such as "profile".
	Album string

	// Cap limits how many photos are attempted.
	Cap transfer.Cap

	// Destination is the root folder in the store. Empty means Options.Root.
	Destination string

	// DryRun fetches and names photos without touching the store.
	DryRun bool
}

// Options configures an Engine.
type Options struct {
	Transfer transfer.Options

	// VerifyTimeout bounds verification, which runs even after the run's
	// context is cancelled.
	VerifyTimeout time.Duration

	// Root is the default destination root folder.
	Root string
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Transfer:      transfer.DefaultOptions(),
		VerifyTimeout: 2 * time.Minute,
	}
}

// Resolver is implemented by catalogs that can turn a screen name into a
// canonical account id. Resolution failures are fatal.
type Resolver interface {
	ResolveAccount(ctx context.Context, account string) (string, error)
}

// Recorder stores finished runs.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// Engine runs sync jobs.
type Engine struct {
	catalog   model.Catalog
	store     model.Store
	manifests model.ManifestWriter
	recorder  Recorder
	opts      Options

	processed int32
	total     int32

	onProgress func(ProgressEvent)
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithRecorder stores every completed run with r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithProgress sets the progress callback. It may be called from several
// goroutines at once.
func WithProgress(fn func(ProgressEvent)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// New creates an Engine.
func New(cat model.Catalog, store model.Store, manifests model.ManifestWriter, opts Options, options ...Option) *Engine {
	if opts.VerifyTimeout <= 0 {
		opts.VerifyTimeout = DefaultOptions().VerifyTimeout
	}
	e := &Engine{
		catalog:   cat,
		store:     store,
		manifests: manifests,
		opts:      opts,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Progress returns how many photos of the current run have been processed,
// counting transfers and verifications separately, out of total.
func (e *Engine) Progress() (processed, total int32) {
	return atomic.LoadInt32(&e.processed), atomic.LoadInt32(&e.total)
}

// Run mirrors one album.
//
// The returned error is non-nil only when the run stopped early: bad
// credentials, an unknown account or album, a destination folder that could
// not be created, or a manifest that could not be written. Per-photo
// failures are in the report. Cancelling ctx stops new transfers; photos
// already attempted are still verified and the manifest is still written.
func (e *Engine) Run(ctx context.Context, job Job) (*Report, error) {
	atomic.StoreInt32(&e.processed, 0)
	atomic.StoreInt32(&e.total, 0)

	report := &Report{Job: job, Account: job.Account, Started: time.Now()}
	fail := func(err error) (*Report, error) {
		report.Fatal = err
		report.Cancelled = ctx.Err() != nil
		report.Finished = time.Now()
		e.progress(ProgressEvent{Message: err.Error(), Level: LevelError, Stage: StageDone})
		e.record(ctx, report)
		return report, err
	}

	if job.Account == "" || job.Album == "" {
		return fail(errors.Errorf(errors.KindNotFound, "run", "account and album are required"))
	}

	if r, ok := e.catalog.(Resolver); ok {
		e.progress(ProgressEvent{Message: fmt.Sprintf("Resolving account %s", job.Account), Level: LevelVerbose, Stage: StageResolve})
		id, err := r.ResolveAccount(ctx, job.Account)
		if err != nil {
			return fail(err)
		}
		report.Account = id
	}

	root := job.Destination
	if root == "" {
		root = e.opts.Root
	}
	report.Folder = model.DestinationFolder(root, report.Account, job.Album)

	named, limit, err := e.plan(ctx, job, report)
	if err != nil {
		return fail(err)
	}

	if job.DryRun {
		report.Plan = named[:limit]
		report.Tally.NotAttempted = len(named)
		report.Finished = time.Now()
		e.record(ctx, report)
		e.progress(ProgressEvent{
			Message: fmt.Sprintf("Dry run: %d of %d photos would be mirrored into %s", limit, len(named), report.Folder),
			Level:   LevelSuccess,
			Stage:   StageDone,
		})
		return report, nil
	}

	if ctx.Err() != nil {
		report.Cancelled = true
		report.Tally.NotAttempted = len(named)
		report.Finished = time.Now()
		e.record(ctx, report)
		e.progress(ProgressEvent{Message: "Cancelled before any transfer", Level: LevelWarning, Stage: StageDone})
		return report, nil
	}

	atomic.StoreInt32(&e.total, int32(2*limit))
	if err := e.reconcile(ctx, job, named, report); err != nil {
		return fail(err)
	}

	e.verify(ctx, named, report)

	if err := e.persist(ctx, job, report); err != nil {
		return fail(err)
	}

	report.Cancelled = ctx.Err() != nil
	report.Finished = time.Now()
	e.record(ctx, report)
	e.summarize(report)

	return report, nil
}

// plan fetches, reduces and names the album's photos and resolves the cap.
func (e *Engine) plan(ctx context.Context, job Job, report *Report) ([]model.NamedPhoto, int, error) {
	fetchLimit := 0
	if !job.Cap.All {
		fetchLimit = job.Cap.N
		if fetchLimit < 0 {
			fetchLimit = -fetchLimit
		}
	}

	var (
		recs    []model.RawPhotoRecord
		photos  []model.CanonicalPhoto
		skipped []error
	)
	if job.Cap.All || fetchLimit > 0 {
		e.progress(ProgressEvent{Message: fmt.Sprintf("Fetching album %s of %s", job.Album, report.Account), Level: LevelInfo, Stage: StageFetch})

		// Skipped records do not count against the cap, so widen the
		// window until it holds enough usable photos or the album ends.
		for limit := fetchLimit; ; {
			var err error
			recs, err = e.catalog.Fetch(ctx, report.Account, job.Album, limit)
			if err != nil {
				return nil, 0, err
			}
			photos, skipped = catalog.ReduceAll(recs)
			if limit == 0 || len(photos) >= fetchLimit || len(recs) < limit {
				break
			}
			limit = fetchLimit + len(skipped)
		}
	}
	report.Tally.Fetched = len(recs)

	report.Skipped = skipped
	report.Tally.Skipped = len(skipped)
	for _, err := range skipped {
		e.progress(ProgressEvent{Message: fmt.Sprintf("Skipping photo: %v", err), Level: LevelWarning, Stage: StagePlan})
	}

	named := catalog.Allocate(photos)

	limit, warning := transfer.ResolveCap(job.Cap, len(named))
	if warning != nil {
		report.Warnings = append(report.Warnings, warning)
		e.progress(ProgressEvent{Message: warning.Error(), Level: LevelWarning, Stage: StagePlan})
	}

	e.progress(ProgressEvent{
		Message: fmt.Sprintf("Found %d photos (%d skipped), mirroring %d", len(recs), len(skipped), limit),
		Level:   LevelInfo,
		Stage:   StagePlan,
	})
	return named, limit, nil
}

func (e *Engine) reconcile(ctx context.Context, job Job, named []model.NamedPhoto, report *Report) error {
	rec := transfer.NewReconciler(e.store, e.opts.Transfer, func(_ int, out model.TransferOutcome) {
		atomic.AddInt32(&e.processed, 1)
		switch out.Status {
		case model.StatusAlreadyPresent:
			e.progress(ProgressEvent{Message: fmt.Sprintf("Skipping existing: %s", out.FileName), Level: LevelVerbose, Stage: StageTransfer, FileName: out.FileName})
		case model.StatusTransferred:
			e.progress(ProgressEvent{Message: fmt.Sprintf("Transferred: %s", out.FileName), Level: LevelVerbose, Stage: StageTransfer, FileName: out.FileName})
		case model.StatusFailed:
			e.progress(ProgressEvent{Message: fmt.Sprintf("Error transferring %s: %v", out.FileName, out.Err), Level: LevelError, Stage: StageTransfer, FileName: out.FileName})
		}
	})

	e.progress(ProgressEvent{Message: fmt.Sprintf("Reconciling %s", report.Folder), Level: LevelInfo, Stage: StageTransfer})
	res, err := rec.Reconcile(ctx, named, report.Folder, job.Cap)
	if err != nil {
		return err
	}
	e.progress(ProgressEvent{Message: fmt.Sprintf("Folder %s %s", report.Folder, res.Folder), Level: LevelVerbose, Stage: StageTransfer})

	report.Transfers = res.Outcomes
	report.Tally.NotAttempted = len(named) - len(res.Outcomes)
	for _, out := range res.Outcomes {
		switch out.Status {
		case model.StatusAlreadyPresent:
			report.Tally.AlreadyPresent++
		case model.StatusTransferred:
			report.Tally.Transferred++
		case model.StatusFailed:
			report.Tally.Failed++
		case model.StatusNotAttempted:
			report.Tally.NotAttempted++
		}
		if out.Status.Attempted() {
			report.Tally.Attempted++
		}
	}

	if n := report.Tally.NotAttempted - (len(named) - len(res.Outcomes)); n > 0 {
		e.progress(ProgressEvent{Message: fmt.Sprintf("Cancelled: %d photos not attempted", n), Level: LevelWarning, Stage: StageTransfer})
	}
	return nil
}

func (e *Engine) verify(ctx context.Context, named []model.NamedPhoto, report *Report) {
	vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.VerifyTimeout)
	defer cancel()

	ver := transfer.NewVerifier(e.store, e.opts.Transfer, func(out model.VerifyOutcome) {
		atomic.AddInt32(&e.processed, 1)
		switch out.Status {
		case model.VerifyAbsent:
			e.progress(ProgressEvent{Message: fmt.Sprintf("Missing after transfer: %s", out.FileName), Level: LevelWarning, Stage: StageVerify, FileName: out.FileName})
		case model.VerifyCheckFailed:
			e.progress(ProgressEvent{Message: fmt.Sprintf("Could not verify %s: %v", out.FileName, out.Err), Level: LevelError, Stage: StageVerify, FileName: out.FileName})
		}
	})

	e.progress(ProgressEvent{Message: fmt.Sprintf("Verifying %d photos", report.Tally.Attempted), Level: LevelInfo, Stage: StageVerify})
	res := ver.Verify(vctx, named, report.Transfers, report.Folder)

	report.Verifies = res.Outcomes
	report.Manifest = res.Manifest
	report.Tally.Verified = res.Verified
	for _, out := range res.Outcomes {
		switch out.Status {
		case model.VerifyAbsent:
			report.Tally.VerifyAbsent++
		case model.VerifyCheckFailed:
			report.Tally.VerifyErrors++
		}
	}

	// Only attempted photos are verified; the processed counter should still
	// reach total when some were never attempted.
	atomic.StoreInt32(&e.processed, atomic.LoadInt32(&e.total))
}

func (e *Engine) persist(ctx context.Context, job Job, report *Report) error {
	key := model.ManifestKey{Account: report.Account, Album: job.Album}
	e.progress(ProgressEvent{Message: fmt.Sprintf("Writing manifest with %d entries", report.Manifest.Len()), Level: LevelVerbose, Stage: StagePersist})
	if err := e.manifests.Persist(context.WithoutCancel(ctx), key, report.Manifest); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return nil
}

func (e *Engine) record(ctx context.Context, report *Report) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), report); err != nil {
		e.progress(ProgressEvent{Message: fmt.Sprintf("Error recording run history: %v", err), Level: LevelWarning, Stage: StageDone})
	}
}

func (e *Engine) summarize(report *Report) {
	t := report.Tally
	msg := fmt.Sprintf("%d attempted, %d transferred, %d already present, %d failed, %d verified",
		t.Attempted, t.Transferred, t.AlreadyPresent, t.Failed, t.Verified)

	level := LevelSuccess
	switch {
	case report.Cancelled:
		level = LevelWarning
		msg = "Cancelled: " + msg
	case t.Failed > 0 || t.VerifyAbsent > 0 || t.VerifyErrors > 0:
		level = LevelWarning
		msg = "Finished with failures: " + msg
	default:
		msg = "Successfully mirrored: " + msg
	}
	e.progress(ProgressEvent{Message: msg, Level: level, Stage: StageDone})
}

func (e *Engine) progress(event ProgressEvent) {
	if e.onProgress != nil {
		e.onProgress(event)
	}
}
