package transfer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/testutil"
)

const folder = "145001838/profile"

func testOptions() Options {
	return Options{
		MaxConcurrent:  4,
		RetryBudget:    1,
		VerifyAttempts: 3,
	}
}

func namedPhotos(n int) []model.NamedPhoto {
	photos := make([]model.NamedPhoto, n)
	for i := range photos {
		photos[i] = model.NamedPhoto{
			CanonicalPhoto: model.CanonicalPhoto{
				SourceURL: fmt.Sprintf("https://src.example/%d.jpg", i),
				SizeType:  "w",
				BaseName:  fmt.Sprint(i),
				CreatedAt: time.Unix(int64(1000+i), 0),
			},
			FileName: fmt.Sprintf("%d.jpg", i),
		}
	}
	return photos
}

func statuses(outcomes []model.TransferOutcome) []model.TransferStatus {
	out := make([]model.TransferStatus, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Status
	}
	return out
}

func TestParseCap(t *testing.T) {
	tests := []struct {
		in      string
		want    Cap
		wantErr bool
	}{
		{"all", CapAll, false},
		{"ALL", CapAll, false},
		{"", CapAll, false},
		{"5", Cap{N: 5}, false},
		{"-3", Cap{N: -3}, false},
		{" 7 ", Cap{N: 7}, false},
		{"five", Cap{}, true},
		{"1.5", Cap{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCap(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveCap(t *testing.T) {
	const n = 10
	tests := []struct {
		name    string
		cap     Cap
		want    int
		clamped bool
	}{
		{"all", CapAll, n, false},
		{"within range", Cap{N: 4}, 4, false},
		{"exact", Cap{N: n}, n, false},
		{"zero", Cap{N: 0}, 0, false},
		{"negative", Cap{N: -3}, 3, true},
		{"negative beyond n", Cap{N: -30}, n, true},
		{"over n", Cap{N: n + 5}, n, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveCap(tt.cap, n)
			assert.Equal(t, tt.want, got)
			if tt.clamped {
				assert.Equal(t, errors.KindCapacity, errors.KindOf(err))
				assert.False(t, errors.IsFatal(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReconcile_TransfersIntoEmptyDestination(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(6)

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)
	assert.Equal(t, model.FolderCreated, res.Folder)
	assert.True(t, store.HasFolder(folder))
	require.Len(t, res.Outcomes, 6)

	for i, out := range res.Outcomes {
		assert.Equal(t, photos[i].FileName, out.FileName)
		assert.Equal(t, model.StatusTransferred, out.Status)
		src, ok := store.Source(model.ObjectPath(folder, photos[i].FileName))
		assert.True(t, ok)
		assert.Equal(t, photos[i].SourceURL, src)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(5)
	r := NewReconciler(store, testOptions(), nil)

	_, err := r.Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)
	_, transfersBefore := store.Calls()

	res, err := r.Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)
	assert.Equal(t, model.FolderExists, res.Folder)

	_, transfersAfter := store.Calls()
	assert.Equal(t, transfersBefore, transfersAfter)
	for _, out := range res.Outcomes {
		assert.Equal(t, model.StatusAlreadyPresent, out.Status)
	}
}

func TestReconcile_CapLimitsAttempts(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(5)
	store.Put(model.ObjectPath(folder, photos[0].FileName), "old")

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), photos, folder, Cap{N: 2})
	require.NoError(t, err)
	assert.NoError(t, res.Warning)
	assert.Equal(t, []model.TransferStatus{model.StatusAlreadyPresent, model.StatusTransferred}, statuses(res.Outcomes))
	assert.Len(t, store.Paths(), 2)
}

func TestReconcile_ClampedCapWarns(t *testing.T) {
	store := testutil.NewFakeStore()

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), namedPhotos(3), folder, Cap{N: 8})
	require.NoError(t, err)
	assert.Len(t, res.Outcomes, 3)
	assert.Equal(t, errors.KindCapacity, errors.KindOf(res.Warning))
}

func TestReconcile_FailureIsolation(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(5)
	store.FailTransfer(model.ObjectPath(folder, photos[2].FileName), errors.Errorf(errors.KindRemote, "upload", "bad request"))
	store.Reject(model.ObjectPath(folder, photos[4].FileName))

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)
	assert.Equal(t, []model.TransferStatus{
		model.StatusTransferred,
		model.StatusTransferred,
		model.StatusFailed,
		model.StatusTransferred,
		model.StatusFailed,
	}, statuses(res.Outcomes))
	assert.Error(t, res.Outcomes[2].Err)
	assert.Error(t, res.Outcomes[4].Err)

	for i, out := range res.Outcomes {
		assert.Equal(t, photos[i].FileName, out.FileName)
	}
}

func TestReconcile_TransientRetriedOnce(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(2)
	transient := errors.Errorf(errors.KindRemoteTransient, "exists", "timeout")

	store.FailExists(model.ObjectPath(folder, photos[0].FileName), transient)
	store.FailExists(model.ObjectPath(folder, photos[1].FileName), transient)
	store.FailTransfer(model.ObjectPath(folder, photos[1].FileName), transient)

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)

	assert.Equal(t, model.StatusTransferred, res.Outcomes[0].Status)

	// The budget was spent on the existence check.
	assert.Equal(t, model.StatusFailed, res.Outcomes[1].Status)
	assert.True(t, errors.IsTransient(res.Outcomes[1].Err))
}

func TestReconcile_NonTransientNotRetried(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(1)
	path := model.ObjectPath(folder, photos[0].FileName)
	store.FailExists(path, errors.Errorf(errors.KindRemote, "exists", "forbidden"))

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, res.Outcomes[0].Status)

	exists, transfers := store.Calls()
	assert.Equal(t, 1, exists)
	assert.Equal(t, 0, transfers)
}

func TestReconcile_FolderFailureIsFatal(t *testing.T) {
	store := testutil.NewFakeStore()
	store.FolderErr = errors.Errorf(errors.KindAuth, "mkdir", "unauthorized")

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), namedPhotos(3), folder, CapAll)
	require.Error(t, err)
	assert.Equal(t, errors.KindAuth, errors.KindOf(err))
	assert.Empty(t, res.Outcomes)

	exists, transfers := store.Calls()
	assert.Zero(t, exists)
	assert.Zero(t, transfers)
}

func TestReconcile_CancellationStopsDispatch(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var once sync.Once
	store.BeforeTransfer = func(string) { once.Do(cancel) }

	opts := testOptions()
	opts.MaxConcurrent = 1
	res, err := NewReconciler(store, opts, nil).Reconcile(ctx, photos, folder, CapAll)
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 5)

	// The in-flight transfer completes despite the cancellation.
	assert.Equal(t, model.StatusTransferred, res.Outcomes[0].Status)
	for _, out := range res.Outcomes[1:] {
		assert.Equal(t, model.StatusNotAttempted, out.Status)
	}
	assert.Len(t, store.Paths(), 1)
}

func TestReconcile_OnItemCalledPerPhoto(t *testing.T) {
	store := testutil.NewFakeStore()
	var mu sync.Mutex
	seen := map[int]model.TransferStatus{}

	_, err := NewReconciler(store, testOptions(), func(i int, out model.TransferOutcome) {
		mu.Lock()
		defer mu.Unlock()
		seen[i] = out.Status
	}).Reconcile(context.Background(), namedPhotos(4), folder, CapAll)
	require.NoError(t, err)
	assert.Len(t, seen, 4)
}

func TestVerify_BuildsManifestFromPresentOnly(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(4)
	outcomes := []model.TransferOutcome{
		{FileName: photos[0].FileName, SizeType: "w", Status: model.StatusTransferred},
		{FileName: photos[1].FileName, SizeType: "w", Status: model.StatusFailed},
		{FileName: photos[2].FileName, SizeType: "w", Status: model.StatusAlreadyPresent},
		{FileName: photos[3].FileName, SizeType: "w", Status: model.StatusNotAttempted},
	}
	store.Put(model.ObjectPath(folder, photos[0].FileName), "a")
	store.Put(model.ObjectPath(folder, photos[2].FileName), "c")
	store.Put(model.ObjectPath(folder, photos[3].FileName), "d")

	ver := NewVerifier(store, testOptions(), nil).Verify(context.Background(), photos, outcomes, folder)

	assert.Equal(t, 3, ver.Attempted)
	assert.Equal(t, 2, ver.Verified)
	require.Len(t, ver.Outcomes, 3)
	assert.Equal(t, model.VerifyPresent, ver.Outcomes[0].Status)
	assert.Equal(t, model.VerifyAbsent, ver.Outcomes[1].Status)
	assert.Equal(t, model.VerifyPresent, ver.Outcomes[2].Status)

	assert.Equal(t, []model.ManifestEntry{
		{FileName: "0.jpg", Size: "w"},
		{FileName: "2.jpg", Size: "w"},
	}, ver.Manifest.Entries)
}

func TestVerify_PollsAsyncTransfers(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Lag = 2
	photos := namedPhotos(1)

	opts := testOptions()
	res, err := NewReconciler(store, opts, nil).Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)

	ver := NewVerifier(store, opts, nil).Verify(context.Background(), photos, res.Outcomes, folder)
	assert.Equal(t, 1, ver.Verified)
	assert.Len(t, ver.Manifest.Entries, 1)
}

func TestVerify_GivesUpAfterAttempts(t *testing.T) {
	store := testutil.NewFakeStore()
	store.Lag = 10
	photos := namedPhotos(1)

	res, err := NewReconciler(store, testOptions(), nil).Reconcile(context.Background(), photos, folder, CapAll)
	require.NoError(t, err)

	ver := NewVerifier(store, testOptions(), nil).Verify(context.Background(), photos, res.Outcomes, folder)
	assert.Zero(t, ver.Verified)
	assert.Equal(t, model.VerifyAbsent, ver.Outcomes[0].Status)
	assert.Empty(t, ver.Manifest.Entries)
}

func TestVerify_CheckFailedIsDistinct(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(1)
	path := model.ObjectPath(folder, photos[0].FileName)
	store.Put(path, "a")
	store.FailExists(path, errors.Errorf(errors.KindRemote, "exists", "server error"))

	outcomes := []model.TransferOutcome{{FileName: photos[0].FileName, Status: model.StatusAlreadyPresent}}
	ver := NewVerifier(store, testOptions(), nil).Verify(context.Background(), photos, outcomes, folder)

	assert.Equal(t, model.VerifyCheckFailed, ver.Outcomes[0].Status)
	assert.Error(t, ver.Outcomes[0].Err)
	assert.Zero(t, ver.Verified)
}

func TestVerify_TransientCheckRetriedWhilePolling(t *testing.T) {
	store := testutil.NewFakeStore()
	photos := namedPhotos(1)
	path := model.ObjectPath(folder, photos[0].FileName)
	store.Put(path, "a")
	store.FailExists(path, errors.Errorf(errors.KindRemoteTransient, "exists", "timeout"))

	outcomes := []model.TransferOutcome{{FileName: photos[0].FileName, Status: model.StatusTransferred}}
	ver := NewVerifier(store, testOptions(), nil).Verify(context.Background(), photos, outcomes, folder)

	assert.Equal(t, model.VerifyPresent, ver.Outcomes[0].Status)
}

func TestVerify_EmptyInput(t *testing.T) {
	ver := NewVerifier(testutil.NewFakeStore(), testOptions(), nil).Verify(context.Background(), nil, nil, folder)
	assert.Zero(t, ver.Attempted)
	assert.Empty(t, ver.Manifest.Entries)
}
