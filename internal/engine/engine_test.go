package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/testutil"
	"github.com/handiism/photo-mirror/internal/transfer"
)

const (
	account = "145001838"
	album   = "profile"
)

func testOptions() Options {
	return Options{
		Transfer: transfer.Options{
			MaxConcurrent:  4,
			RetryBudget:    1,
			VerifyAttempts: 3,
		},
		VerifyTimeout: 5 * time.Second,
		Root:          "backup",
	}
}

func record(id int64, likes int, ts int64, variants ...model.SizeVariant) model.RawPhotoRecord {
	return model.RawPhotoRecord{
		ID:        id,
		OwnerID:   account,
		AlbumID:   album,
		Likes:     likes,
		CreatedAt: time.Unix(ts, 0),
		Variants:  variants,
	}
}

func size(h int, url, typ string) model.SizeVariant {
	return model.SizeVariant{Width: h, Height: h, URL: url, Type: typ}
}

type fixture struct {
	catalog   *testutil.FakeCatalog
	store     *testutil.FakeStore
	manifests *testutil.ManifestSpy
	events    []ProgressEvent
	mu        sync.Mutex
}

func newFixture() *fixture {
	return &fixture{
		catalog:   testutil.NewFakeCatalog(),
		store:     testutil.NewFakeStore(),
		manifests: testutil.NewManifestSpy(),
	}
}

func (f *fixture) engine(opts ...Option) *Engine {
	opts = append(opts, WithProgress(func(ev ProgressEvent) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, ev)
	}))
	return New(f.catalog, f.store, f.manifests, testOptions(), opts...)
}

func TestRun_EndToEndScenario(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 10, 1000, size(100, "https://src/A", "x"), size(0, "https://src/B", "base")),
		record(2, 10, 2000, size(50, "https://src/C", "m")),
	)

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.Cap{N: 2}})
	require.NoError(t, err)
	assert.True(t, report.OK())

	assert.Equal(t, "backup/145001838/profile", report.Folder)
	assert.Equal(t, []string{"backup/145001838/profile/10-1000.jpg", "backup/145001838/profile/10.jpg"}, f.store.Paths())

	src, _ := f.store.Source("backup/145001838/profile/10.jpg")
	assert.Equal(t, "https://src/B", src)
	src, _ = f.store.Source("backup/145001838/profile/10-1000.jpg")
	assert.Equal(t, "https://src/C", src)

	require.Equal(t, 1, f.manifests.Calls)
	m := f.manifests.Saved[model.ManifestKey{Account: account, Album: album}]
	assert.Equal(t, []model.ManifestEntry{
		{FileName: "10.jpg", Size: "base"},
		{FileName: "10-1000.jpg", Size: "m"},
	}, m.Entries)

	assert.Equal(t, model.Tally{
		Fetched:     2,
		Attempted:   2,
		Transferred: 2,
		Verified:    2,
	}, report.Tally)

	processed, total := f.engine().Progress()
	assert.Zero(t, processed)
	assert.Zero(t, total)
}

func TestRun_SecondRunTransfersNothing(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 3, 100, size(10, "u1", "s")),
		record(2, 4, 200, size(10, "u2", "s")),
		record(3, 5, 300, size(10, "u3", "s")),
	)
	eng := f.engine()
	job := Job{Account: account, Album: album, Cap: transfer.CapAll}

	_, err := eng.Run(context.Background(), job)
	require.NoError(t, err)
	_, transfers := f.store.Calls()

	report, err := eng.Run(context.Background(), job)
	require.NoError(t, err)

	_, transfersAfter := f.store.Calls()
	assert.Equal(t, transfers, transfersAfter)
	assert.Equal(t, 3, report.Tally.AlreadyPresent)
	assert.Zero(t, report.Tally.Transferred)
	assert.Equal(t, 3, report.Tally.Verified)
	assert.Equal(t, 2, f.manifests.Calls)
}

func TestRun_PartialFailure(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 1, 100, size(10, "u1", "s")),
		record(2, 2, 200, size(10, "u2", "s")),
		record(3, 3, 300, size(10, "u3", "s")),
	)
	f.store.FailTransfer("backup/145001838/profile/2.jpg", errors.Errorf(errors.KindRemote, "upload", "quota exceeded"))

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.CapAll})
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "quota exceeded")

	require.Len(t, report.Transfers, 3)
	assert.Equal(t, model.StatusTransferred, report.Transfers[0].Status)
	assert.Equal(t, model.StatusFailed, report.Transfers[1].Status)
	assert.Equal(t, model.StatusTransferred, report.Transfers[2].Status)

	m := f.manifests.Saved[model.ManifestKey{Account: account, Album: album}]
	assert.Equal(t, []model.ManifestEntry{{FileName: "1.jpg", Size: "s"}, {FileName: "3.jpg", Size: "s"}}, m.Entries)

	assert.Equal(t, 3, report.Tally.Attempted)
	assert.Equal(t, 1, report.Tally.Failed)
	assert.Equal(t, 2, report.Tally.Verified)
	assert.Equal(t, 1, report.Tally.VerifyAbsent)
}

func TestRun_SkipsRecordsWithoutVariants(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 1, 100, size(10, "u1", "s")),
		record(2, 2, 200),
	)

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.CapAll})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Tally.Fetched)
	assert.Equal(t, 1, report.Tally.Skipped)
	assert.Equal(t, 1, report.Tally.Transferred)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, errors.KindDataQuality, errors.KindOf(report.Skipped[0]))
}

func TestRun_CapFetchesOnlyWhatIsNeeded(t *testing.T) {
	f := newFixture()
	for i := 0; i < 10; i++ {
		f.catalog.Add(account, album, record(int64(i), i, int64(100+i), size(10, "u", "s")))
	}

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.Cap{N: -3}})
	require.NoError(t, err)

	assert.Equal(t, 3, f.catalog.LastLimit)
	assert.Equal(t, 3, report.Tally.Attempted)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, errors.KindCapacity, errors.KindOf(report.Warnings[0]))
}

func TestRun_SkippedRecordsDoNotUseUpTheCap(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 1, 100),
		record(2, 2, 200, size(10, "u2", "s")),
		record(3, 3, 300),
		record(4, 4, 400, size(10, "u4", "s")),
		record(5, 5, 500, size(10, "u5", "s")),
	)

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.Cap{N: 2}})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Tally.Attempted)
	assert.Equal(t, 2, report.Tally.Transferred)
	assert.Equal(t, 2, report.Tally.Skipped)
	assert.Empty(t, report.Warnings)
	assert.ElementsMatch(t, []string{"backup/145001838/profile/2.jpg", "backup/145001838/profile/4.jpg"}, f.store.Paths())
}

func TestRun_SkippedRecordsAtEndOfAlbum(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 1, 100),
		record(2, 2, 200, size(10, "u2", "s")),
	)

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.Cap{N: 2}})
	require.NoError(t, err)

	assert.Equal(t, 2, f.catalog.FetchCalls)
	assert.Equal(t, 1, report.Tally.Attempted)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, errors.KindCapacity, errors.KindOf(report.Warnings[0]))
}

func TestRun_CapLargerThanAlbum(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album, record(1, 1, 100, size(10, "u", "s")), record(2, 2, 200, size(10, "u", "s")))

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.Cap{N: 7}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Tally.Attempted)
	assert.Len(t, report.Warnings, 1)
}

func TestRun_ResolvesScreenName(t *testing.T) {
	f := newFixture()
	f.catalog.Aliases["durov"] = "1"
	f.catalog.Add("1", album, record(1, 7, 100, size(10, "u", "s")))

	report, err := f.engine().Run(context.Background(), Job{Account: "durov", Album: album, Cap: transfer.CapAll, Destination: "other"})
	require.NoError(t, err)
	assert.Equal(t, "1", report.Account)
	assert.Equal(t, "other/1/profile", report.Folder)
	assert.True(t, f.store.HasFolder("other/1/profile"))
	_, ok := f.manifests.Saved[model.ManifestKey{Account: "1", Album: album}]
	assert.True(t, ok)
}

func TestRun_FatalErrorsStopBeforeTransfer(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		kind  errors.Kind
	}{
		{"bad token", func(f *fixture) { f.catalog.ResolveErr = errors.Errorf(errors.KindAuth, "users.get", "invalid token") }, errors.KindAuth},
		{"unknown account", func(f *fixture) { f.catalog.ResolveErr = errors.Errorf(errors.KindNotFound, "users.get", "deactivated") }, errors.KindNotFound},
		{"unknown album", func(f *fixture) {}, errors.KindNotFound},
		{"folder not creatable", func(f *fixture) {
			f.catalog.Add(account, album, record(1, 1, 100, size(10, "u", "s")))
			f.store.FolderErr = errors.Errorf(errors.KindAuth, "mkdir", "unauthorized")
		}, errors.KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			tt.setup(f)

			report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.CapAll})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errors.KindOf(err))
			assert.True(t, errors.IsFatal(err))
			require.NotNil(t, report)
			assert.Equal(t, err, report.Fatal)

			_, transfers := f.store.Calls()
			assert.Zero(t, transfers)
			assert.Zero(t, f.manifests.Calls)
		})
	}
}

func TestRun_DryRunLeavesStoreUntouched(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album,
		record(1, 5, 100, size(10, "u1", "s")),
		record(2, 5, 200, size(10, "u2", "s")),
		record(3, 6, 300, size(10, "u3", "s")),
	)

	report, err := f.engine().Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.Cap{N: 2}, DryRun: true})
	require.NoError(t, err)

	require.Len(t, report.Plan, 2)
	assert.Equal(t, "5.jpg", report.Plan[0].FileName)
	assert.Equal(t, "5-100.jpg", report.Plan[1].FileName)

	exists, transfers := f.store.Calls()
	assert.Zero(t, exists)
	assert.Zero(t, transfers)
	assert.False(t, f.store.HasFolder(report.Folder))
	assert.Zero(t, f.manifests.Calls)
}

func TestRun_CancelledMidRunStillVerifiesAndPersists(t *testing.T) {
	f := newFixture()
	for i := 0; i < 6; i++ {
		f.catalog.Add(account, album, record(int64(i), i, int64(100+i), size(10, "u", "s")))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	f.store.BeforeTransfer = func(string) { once.Do(cancel) }

	opts := testOptions()
	opts.Transfer.MaxConcurrent = 1
	eng := New(f.catalog, f.store, f.manifests, opts)

	report, err := eng.Run(ctx, Job{Account: account, Album: album, Cap: transfer.CapAll})
	require.NoError(t, err)
	assert.True(t, report.Cancelled)
	assert.False(t, report.OK())

	assert.Equal(t, 1, report.Tally.Transferred)
	assert.Equal(t, 5, report.Tally.NotAttempted)
	assert.Equal(t, 1, report.Tally.Verified)

	require.Equal(t, 1, f.manifests.Calls)
	m := f.manifests.Saved[model.ManifestKey{Account: account, Album: album}]
	assert.Equal(t, []model.ManifestEntry{{FileName: "0.jpg", Size: "s"}}, m.Entries)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album, record(1, 1, 100, size(10, "u", "s")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.engine().Run(ctx, Job{Account: account, Album: album, Cap: transfer.CapAll})
	require.Error(t, err)
	assert.True(t, report.Cancelled)
	assert.Zero(t, f.manifests.Calls)
}

type recorderSpy struct {
	reports []*Report
}

func (r *recorderSpy) Record(_ context.Context, report *Report) error {
	r.reports = append(r.reports, report)
	return nil
}

func TestRun_RecordsHistory(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album, record(1, 1, 100, size(10, "u", "s")))
	rec := &recorderSpy{}

	report, err := f.engine(WithRecorder(rec)).Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.CapAll})
	require.NoError(t, err)
	require.Len(t, rec.reports, 1)
	assert.Same(t, report, rec.reports[0])
	assert.False(t, report.Finished.IsZero())
}

func TestRun_ProgressReachesTotal(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album, record(1, 1, 100, size(10, "u", "s")), record(2, 2, 200, size(10, "u", "s")))
	eng := f.engine()

	_, err := eng.Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.CapAll})
	require.NoError(t, err)

	processed, total := eng.Progress()
	assert.Equal(t, int32(4), total)
	assert.Equal(t, total, processed)

	last := f.events[len(f.events)-1]
	assert.Equal(t, StageDone, last.Stage)
	assert.Equal(t, LevelSuccess, last.Level)
}

func TestRun_RecordsFailedAndDryRuns(t *testing.T) {
	f := newFixture()
	f.catalog.Add(account, album, record(1, 1, 100, size(10, "u", "s")))
	rec := &recorderSpy{}
	e := f.engine(WithRecorder(rec))

	_, err := e.Run(context.Background(), Job{Account: account, Album: "missing", Cap: transfer.CapAll})
	require.Error(t, err)

	_, err = e.Run(context.Background(), Job{Account: account, Album: album, Cap: transfer.CapAll, DryRun: true})
	require.NoError(t, err)

	require.Len(t, rec.reports, 2)
	assert.Equal(t, errors.KindNotFound, errors.KindOf(rec.reports[0].Fatal))
	assert.True(t, rec.reports[1].Job.DryRun)
}
