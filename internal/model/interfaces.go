package model

import "context"

// Catalog is a source of photo records.
//
// Fetch returns up to limit records (0 means all) of an album, in source
// order. It fails with an AUTH error on invalid credentials and NOT_FOUND for
// unknown or deactivated accounts and albums.
type Catalog interface {
	Fetch(ctx context.Context, account, album string, limit int) ([]RawPhotoRecord, error)
}

// FolderState is the result of Store.EnsureFolder.
type FolderState int

const (
	FolderCreated FolderState = iota
	FolderExists
)

func (s FolderState) String() string {
	if s == FolderCreated {
		return "created"
	}
	return "exists"
}

// TransferState is the result of Store.TransferFromURL.
type TransferState int

const (
	TransferAccepted TransferState = iota
	TransferRejected
)

func (s TransferState) String() string {
	if s == TransferAccepted {
		return "accepted"
	}
	return "rejected"
}

// Store is a remote object store photos are mirrored into.
//
// Exists distinguishes "not found" (false, nil) from a failed check (error).
// TransferFromURL asks the store to fetch sourceURL into path; acceptance
// may be asynchronous.
type Store interface {
	EnsureFolder(ctx context.Context, path string) (FolderState, error)
	Exists(ctx context.Context, path string) (bool, error)
	TransferFromURL(ctx context.Context, path, sourceURL string) (TransferState, error)
}

// ManifestWriter persists a run's manifest, replacing any previous one for the key.
type ManifestWriter interface {
	Persist(ctx context.Context, key ManifestKey, m Manifest) error
}
