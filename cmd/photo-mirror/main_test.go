package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handiism/photo-mirror/internal/engine"
	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
)

// capture redirects the command output for the duration of a test.
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

// fakeVK serves one account with a profile album of two photos.
func fakeVK(t *testing.T) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "token" {
			fmt.Fprint(w, `{"error":{"error_code":5,"error_msg":"User authorization failed"}}`)
			return
		}
		switch r.URL.Path {
		case "/users.get":
			fmt.Fprint(w, `{"response":[{"id":1,"first_name":"Pavel","last_name":"Durov","screen_name":"durov"}]}`)
		case "/photos.getAlbums":
			fmt.Fprint(w, `{"response":{"count":2,"items":[
				{"id":-6,"owner_id":1,"title":"Profile photos","size":2},
				{"id":136592355,"owner_id":1,"title":"Summer","size":40}]}}`)
		case "/photos.get":
			fmt.Fprint(w, `{"response":{"count":2,"items":[
				{"id":1,"album_id":-6,"owner_id":1,"date":1600000000,"likes":{"count":10},
				 "sizes":[{"type":"z","url":"https://pp.userapi.com/1_z.jpg","width":1280,"height":960}]},
				{"id":2,"album_id":-6,"owner_id":1,"date":1600000100,"likes":{"count":7},
				 "sizes":[{"type":"y","url":"https://pp.userapi.com/2_y.jpg","width":807,"height":605}]}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("PHOTOMIRROR_SOURCE_API_URL", srv.URL)
	t.Setenv("PHOTOMIRROR_MANIFEST_DIR", filepath.Join(dir, "manifests"))
	t.Setenv("PHOTOMIRROR_HISTORY_PATH", filepath.Join(dir, "history.db"))
	t.Setenv("VK_TOKEN", "token")
}

func configFlag(t *testing.T) string {
	return filepath.Join(t.TempDir(), "config.yaml")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitError, exitCode(errors.New("boom")))
	assert.Equal(t, exitCancelled, exitCode(context.Canceled))
	assert.Equal(t, exitCancelled, exitCode(fmt.Errorf("sync: %w", context.Canceled)))
}

func TestConfigInit(t *testing.T) {
	out, errOut := capture(t)
	path := configFlag(t)

	require.Equal(t, exitOK, run([]string{"config", "init", "--config", path}))
	assert.Contains(t, out.String(), "Wrote "+path)

	assert.Equal(t, exitError, run([]string{"config", "init", "--config", path}))
	assert.Contains(t, errOut.String(), "already exists")

	assert.Equal(t, exitOK, run([]string{"config", "init", "--config", path, "--force"}))
}

func TestAlbumsCommand(t *testing.T) {
	fakeVK(t)
	out, _ := capture(t)

	require.Equal(t, exitOK, run([]string{"albums", "durov", "--config", configFlag(t)}))
	assert.Contains(t, out.String(), "profile")
	assert.Contains(t, out.String(), "Profile photos (system)")
	assert.Contains(t, out.String(), "Summer")
}

func TestAlbumsCommandBadToken(t *testing.T) {
	fakeVK(t)
	t.Setenv("VK_TOKEN", "wrong")
	_, errOut := capture(t)

	assert.Equal(t, exitError, run([]string{"albums", "durov", "--config", configFlag(t)}))
	assert.Contains(t, errOut.String(), "authorization failed")
}

func TestSyncDryRun(t *testing.T) {
	fakeVK(t)
	out, _ := capture(t)

	code := run([]string{"sync", "durov", "--album", "profile", "--count", "all", "--dry-run", "--config", configFlag(t)})
	require.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "1/profile")
	assert.Contains(t, out.String(), "10.jpg")
	assert.Contains(t, out.String(), "7.jpg")
	assert.Contains(t, out.String(), "dry run: 2 of 2 photos would be mirrored")

	out.Reset()
	require.Equal(t, exitOK, run([]string{"history", "--account", "1", "--config", configFlag(t)}))
	assert.Contains(t, out.String(), "STARTED")
	assert.Contains(t, out.String(), "dry run")
}

func TestSyncBadCount(t *testing.T) {
	fakeVK(t)
	_, errOut := capture(t)

	assert.Equal(t, exitError, run([]string{"sync", "durov", "--count", "many", "--config", configFlag(t)}))
	assert.Contains(t, errOut.String(), "invalid count")
}

func TestProgressLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	forward := progressLogger(log)

	forward(engine.ProgressEvent{Message: "details", Level: engine.LevelVerbose, Stage: engine.StageFetch})
	forward(engine.ProgressEvent{Message: "clamped", Level: engine.LevelWarning, Stage: engine.StagePlan})
	forward(engine.ProgressEvent{Message: "upload failed", Level: engine.LevelError, Stage: engine.StageTransfer, FileName: "10.jpg"})
	forward(engine.ProgressEvent{Message: "done", Level: engine.LevelSuccess, Stage: engine.StageDone})

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, logrus.DebugLevel, entries[0].Level)
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, logrus.ErrorLevel, entries[2].Level)
	assert.Equal(t, "10.jpg", entries[2].Data["file"])
	assert.Equal(t, "transfer", entries[2].Data["stage"])
	assert.Equal(t, logrus.InfoLevel, entries[3].Level)
}

func TestCountFailed(t *testing.T) {
	reports := []*engine.Report{
		{Tally: model.Tally{Attempted: 3, Verified: 3}},
		{Tally: model.Tally{Attempted: 4, Verified: 2}},
	}
	assert.Equal(t, 2, countFailed(reports))
}
