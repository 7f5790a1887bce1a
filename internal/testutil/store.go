// Package testutil provides in-memory collaborators for tests.
package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/handiism/photo-mirror/internal/model"
)

// FakeStore is an in-memory model.Store.
//
// Errors queued with FailExists or FailTransfer are returned, in order, by
// the next calls for that path. Transfers become visible after Lag further
// Exists calls for the path, which mimics a destination that accepts
// transfers asynchronously.
type FakeStore struct {
	mu sync.Mutex

	objects map[string]string
	folders map[string]bool
	pending map[string]int

	existsErrs   map[string][]error
	transferErrs map[string][]error
	rejected     map[string]bool

	// Lag is the number of Exists calls a transferred object stays invisible.
	Lag int

	// FolderErr, if set, is returned by EnsureFolder.
	FolderErr error

	// BeforeTransfer, if set, is called at the start of every TransferFromURL.
	BeforeTransfer func(path string)

	ExistsCalls   int
	TransferCalls int
}

// NewFakeStore returns an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		objects:      make(map[string]string),
		folders:      make(map[string]bool),
		pending:      make(map[string]int),
		existsErrs:   make(map[string][]error),
		transferErrs: make(map[string][]error),
		rejected:     make(map[string]bool),
	}
}

// Put stores an object directly.
func (s *FakeStore) Put(path, source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = source
}

// Delete removes an object.
func (s *FakeStore) Delete(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, path)
}

// FailExists queues errors for Exists calls on path.
func (s *FakeStore) FailExists(path string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existsErrs[path] = append(s.existsErrs[path], errs...)
}

// FailTransfer queues errors for TransferFromURL calls on path.
func (s *FakeStore) FailTransfer(path string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferErrs[path] = append(s.transferErrs[path], errs...)
}

// Reject makes transfers to path return TransferRejected.
func (s *FakeStore) Reject(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected[path] = true
}

// Source returns the source URL an object was transferred from.
func (s *FakeStore) Source(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.objects[path]
	return src, ok
}

// Paths returns the stored object paths, sorted.
func (s *FakeStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// HasFolder reports whether EnsureFolder was called for path.
func (s *FakeStore) HasFolder(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.folders[path]
}

// Calls returns the Exists and TransferFromURL call counts.
func (s *FakeStore) Calls() (exists, transfer int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ExistsCalls, s.TransferCalls
}

func (s *FakeStore) EnsureFolder(ctx context.Context, path string) (model.FolderState, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FolderErr != nil {
		return 0, s.FolderErr
	}
	if s.folders[path] {
		return model.FolderExists, nil
	}
	s.folders[path] = true
	return model.FolderCreated, nil
}

func (s *FakeStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExistsCalls++

	if errs := s.existsErrs[path]; len(errs) > 0 {
		s.existsErrs[path] = errs[1:]
		return false, errs[0]
	}
	if n, ok := s.pending[path]; ok {
		if n > 0 {
			s.pending[path] = n - 1
			return false, nil
		}
		delete(s.pending, path)
	}
	_, ok := s.objects[path]
	return ok, nil
}

func (s *FakeStore) TransferFromURL(ctx context.Context, path, sourceURL string) (model.TransferState, error) {
	if s.BeforeTransfer != nil {
		s.BeforeTransfer(path)
	}
	if err := ctx.Err(); err != nil {
		return model.TransferRejected, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TransferCalls++

	if errs := s.transferErrs[path]; len(errs) > 0 {
		s.transferErrs[path] = errs[1:]
		return model.TransferRejected, errs[0]
	}
	if s.rejected[path] {
		return model.TransferRejected, nil
	}
	s.objects[path] = sourceURL
	if s.Lag > 0 {
		s.pending[path] = s.Lag
	}
	return model.TransferAccepted, nil
}
