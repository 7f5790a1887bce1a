package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
)

// FakeCatalog is an in-memory model.Catalog that also resolves accounts.
type FakeCatalog struct {
	mu sync.Mutex

	// Photos maps "account/album" to its records.
	Photos map[string][]model.RawPhotoRecord

	// Aliases maps screen names to account ids.
	Aliases map[string]string

	// FetchErr and ResolveErr, if set, are returned by every call.
	FetchErr   error
	ResolveErr error

	FetchCalls int
	LastLimit  int
}

// NewFakeCatalog returns an empty FakeCatalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Photos:  make(map[string][]model.RawPhotoRecord),
		Aliases: make(map[string]string),
	}
}

// Add registers records for an album.
func (c *FakeCatalog) Add(account, album string, recs ...model.RawPhotoRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := account + "/" + album
	c.Photos[key] = append(c.Photos[key], recs...)
}

func (c *FakeCatalog) ResolveAccount(ctx context.Context, account string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ResolveErr != nil {
		return "", c.ResolveErr
	}
	if id, ok := c.Aliases[account]; ok {
		return id, nil
	}
	return account, nil
}

func (c *FakeCatalog) Fetch(ctx context.Context, account, album string, limit int) ([]model.RawPhotoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FetchCalls++
	c.LastLimit = limit
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}

	recs, ok := c.Photos[account+"/"+album]
	if !ok {
		return nil, errors.Errorf(errors.KindNotFound, "fetch", "album %s of %s not found", album, account)
	}
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return append([]model.RawPhotoRecord(nil), recs...), nil
}

// Albums lists the albums registered for account, sorted by id.
func (c *FakeCatalog) Albums(ctx context.Context, account string) ([]model.Album, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FetchErr != nil {
		return nil, c.FetchErr
	}

	var albums []model.Album
	for key, recs := range c.Photos {
		acct, id, _ := strings.Cut(key, "/")
		if acct != account {
			continue
		}
		albums = append(albums, model.Album{ID: id, OwnerID: acct, Title: id, Size: len(recs)})
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].ID < albums[j].ID })
	return albums, nil
}

// ManifestSpy is a model.ManifestWriter that keeps what it was given.
type ManifestSpy struct {
	mu    sync.Mutex
	Calls int
	Saved map[model.ManifestKey]model.Manifest
	Err   error
}

// NewManifestSpy returns an empty ManifestSpy.
func NewManifestSpy() *ManifestSpy {
	return &ManifestSpy{Saved: make(map[model.ManifestKey]model.Manifest)}
}

func (s *ManifestSpy) Persist(ctx context.Context, key model.ManifestKey, m model.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if s.Err != nil {
		return s.Err
	}
	s.Saved[key] = m
	return nil
}
