package mirror

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/handiism/photo-mirror/internal/config"
	"github.com/handiism/photo-mirror/internal/engine"
	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/history"
	"github.com/handiism/photo-mirror/internal/manifest"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/s3store"
	"github.com/handiism/photo-mirror/internal/transfer"
	"github.com/handiism/photo-mirror/internal/vk"
	"github.com/handiism/photo-mirror/internal/yadisk"
)

// Catalog is a photo source that can also resolve accounts and list albums.
type Catalog interface {
	model.Catalog
	engine.Resolver
	Albums(ctx context.Context, account string) ([]model.Album, error)
}

// Request describes what Initialize should queue.
type Request struct {
	Account string

	// Albums is a comma or newline separated list of album ids.
	Albums string

	// AllAlbums queues every album of the account and ignores Albums.
	AllAlbums bool

	Cap         transfer.Cap
	Destination string
	DryRun      bool
}

// Manager coordinates syncs of one or more albums of an account.
type Manager struct {
	settings  *config.Settings
	log       logrus.FieldLogger
	catalog   Catalog
	store     model.Store
	manifests model.ManifestWriter
	history   *history.Store
	engine    *engine.Engine

	account string
	jobs    []engine.Job
	albums  map[string]model.Album

	albumsDone int32

	onProgress func(engine.ProgressEvent)
	mu         sync.RWMutex
}

// Option overrides a collaborator NewManager would otherwise build from
// the settings.
type Option func(*Manager)

// WithCatalog uses c instead of a VK client.
func WithCatalog(c Catalog) Option {
	return func(m *Manager) { m.catalog = c }
}

// WithStore uses s instead of the configured destination backend.
func WithStore(s model.Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithManifests uses w instead of a manifest directory on the OS
// filesystem.
func WithManifests(w model.ManifestWriter) Option {
	return func(m *Manager) { m.manifests = w }
}

// WithoutHistory disables run history.
func WithoutHistory() Option {
	return func(m *Manager) {
		m.settings.History.Path = ""
	}
}

// NewManager creates a Manager from settings. The caller must Close it.
func NewManager(settings *config.Settings, log logrus.FieldLogger, onProgress func(engine.ProgressEvent), opts ...Option) (*Manager, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	copied := *settings
	m := &Manager{
		settings:   &copied,
		log:        log,
		onProgress: onProgress,
	}
	for _, o := range opts {
		o(m)
	}

	if err := m.settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	if m.catalog == nil {
		src := m.settings.Source
		m.catalog = vk.NewClient(vk.Config{
			Token:             src.Token,
			APIURL:            src.APIURL,
			APIVersion:        src.APIVersion,
			PageSize:          src.PageSize,
			RequestsPerSecond: src.RequestsPerSecond,
			Timeout:           src.Timeout,
		}, log)
	}

	if m.store == nil {
		store, err := NewStore(m.settings.Destination, log)
		if err != nil {
			return nil, err
		}
		m.store = store
	}

	if m.manifests == nil {
		m.manifests = manifest.NewWriter(afero.NewOsFs(), m.settings.Manifest.Dir, log)
	}

	options := []engine.Option{engine.WithProgress(m.progress)}
	if m.settings.History.Path != "" {
		h, err := history.Open(m.settings.History.Path, m.settings.History.Keep)
		if err != nil {
			return nil, err
		}
		m.history = h
		options = append(options, engine.WithRecorder(h))
	}

	m.engine = engine.New(m.catalog, m.store, m.manifests, m.settings.ToEngineOptions(), options...)
	return m, nil
}

// NewStore builds the destination backend named in cfg.
func NewStore(cfg config.DestinationConfig, log logrus.FieldLogger) (model.Store, error) {
	switch cfg.Backend {
	case config.BackendYandex:
		return yadisk.NewClient(yadisk.Config{
			Token:             cfg.Yandex.Token,
			APIURL:            cfg.Yandex.APIURL,
			RequestsPerSecond: cfg.Yandex.RequestsPerSecond,
			Timeout:           cfg.Yandex.Timeout,
		}, log), nil
	case config.BackendS3:
		store, err := s3store.New(s3store.Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			UseSSL:    cfg.S3.UseSSL,
			Timeout:   cfg.S3.Timeout,
		}, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown destination backend %q", cfg.Backend)
	}
}

// Close releases the run history database.
func (m *Manager) Close() error {
	if m.history != nil {
		return m.history.Close()
	}
	return nil
}

// History returns the run history, or nil when it is disabled.
func (m *Manager) History() *history.Store {
	return m.history
}

// Albums lists the albums of an account given by id or screen name.
func (m *Manager) Albums(ctx context.Context, account string) ([]model.Album, error) {
	id, err := m.catalog.ResolveAccount(ctx, account)
	if err != nil {
		return nil, err
	}
	return m.catalog.Albums(ctx, id)
}

// Initialize resolves the account and queues one job per requested album.
func (m *Manager) Initialize(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.Account) == "" {
		return errors.Errorf(errors.KindNotFound, "initialize", "no account given")
	}

	m.progress(engine.ProgressEvent{Message: fmt.Sprintf("Resolving account %s", req.Account), Level: engine.LevelVerbose, Stage: engine.StageResolve})
	account, err := m.catalog.ResolveAccount(ctx, req.Account)
	if err != nil {
		return err
	}

	listed, err := m.catalog.Albums(ctx, account)
	if err != nil {
		if req.AllAlbums || errors.KindOf(err) == errors.KindAuth {
			return err
		}
		m.progress(engine.ProgressEvent{Message: fmt.Sprintf("Could not list albums: %v", err), Level: engine.LevelWarning, Stage: engine.StageResolve})
	}
	known := make(map[string]model.Album, len(listed))
	for _, a := range listed {
		known[a.ID] = a
	}

	var ids []string
	if req.AllAlbums {
		for _, a := range listed {
			ids = append(ids, a.ID)
		}
	} else {
		ids = parseAlbums(req.Albums)
	}
	if len(ids) == 0 {
		return errors.Errorf(errors.KindNotFound, "initialize", "no albums to sync for account %s", account)
	}

	jobs := make([]engine.Job, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, engine.Job{
			Account:     account,
			Album:       id,
			Cap:         req.Cap,
			Destination: req.Destination,
			DryRun:      req.DryRun,
		})
		if a, ok := known[id]; ok {
			m.progress(engine.ProgressEvent{Message: fmt.Sprintf("Found album: %s (%d photos)", a.Title, a.Size), Level: engine.LevelInfo, Stage: engine.StageResolve})
		} else {
			m.progress(engine.ProgressEvent{Message: fmt.Sprintf("Album %s is not listed for %s, trying anyway", id, account), Level: engine.LevelVerbose, Stage: engine.StageResolve})
		}
	}

	m.mu.Lock()
	m.account = account
	m.jobs = jobs
	m.albums = known
	m.mu.Unlock()
	atomic.StoreInt32(&m.albumsDone, 0)
	return nil
}

// Start runs the queued jobs one after another and returns their reports.
// It stops at the first AUTH error or when ctx is cancelled; other fatal
// errors are collected and the next album is tried.
func (m *Manager) Start(ctx context.Context) ([]*engine.Report, error) {
	m.mu.RLock()
	jobs := m.jobs
	m.mu.RUnlock()

	var (
		reports []*engine.Report
		result  *multierror.Error
	)
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		m.progress(engine.ProgressEvent{Message: fmt.Sprintf("Syncing album %s of %s", job.Album, job.Account), Level: engine.LevelInfo, Stage: engine.StageFetch})
		report, err := m.engine.Run(ctx, job)
		reports = append(reports, report)
		atomic.AddInt32(&m.albumsDone, 1)

		m.log.WithFields(logrus.Fields{
			"account":     job.Account,
			"album":       job.Album,
			"transferred": report.Tally.Transferred,
			"present":     report.Tally.AlreadyPresent,
			"failed":      report.Tally.Failed,
			"verified":    report.Tally.Verified,
			"duration":    report.Duration(),
		}).Info("album synced")

		if err == nil {
			continue
		}
		if report.Cancelled || ctx.Err() != nil {
			return reports, ctx.Err()
		}
		if errors.KindOf(err) == errors.KindAuth {
			return reports, err
		}
		result = multierror.Append(result, fmt.Errorf("album %s: %w", job.Album, err))
	}
	return reports, result.ErrorOrNil()
}

// Progress returns the engine's counters for the current album and how many
// of the queued albums have finished.
func (m *Manager) Progress() (processed, total int32, albumsDone, albumsTotal int) {
	processed, total = m.engine.Progress()
	m.mu.RLock()
	albumsTotal = len(m.jobs)
	m.mu.RUnlock()
	return processed, total, int(atomic.LoadInt32(&m.albumsDone)), albumsTotal
}

// AlbumNames describes the queued albums.
func (m *Manager) AlbumNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, len(m.jobs))
	for i, job := range m.jobs {
		if a, ok := m.albums[job.Album]; ok && a.Title != "" {
			names[i] = fmt.Sprintf("%s (%s, %d photos)", a.Title, a.ID, a.Size)
			continue
		}
		names[i] = job.Album
	}
	return names
}

// Account is the resolved account id of the queued jobs.
func (m *Manager) Account() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.account
}

// parseAlbums splits a comma or newline separated album list, dropping
// blanks and duplicates.
func parseAlbums(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool {
		return r == ',' || r == '\n'
	})

	seen := make(map[string]bool, len(fields))
	var ids []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		ids = append(ids, f)
	}
	return ids
}

func (m *Manager) progress(event engine.ProgressEvent) {
	if m.onProgress != nil {
		m.onProgress(event)
	}
}
