// Package model defines the core data structures and collaborator interfaces
// used throughout photo-mirror.
//
// # Photos
//
// A run moves photos through three shapes:
//
//	RawPhotoRecord  // as fetched: every size variant, likes, upload time
//	CanonicalPhoto  // one chosen rendition and a base name
//	NamedPhoto      // plus a file name unique within the run
//
// # Outcomes
//
// Reconciliation produces a TransferOutcome per photo and verification a
// VerifyOutcome per attempted photo. Tally aggregates both.
//
// # Collaborators
//
// Catalog, Store and ManifestWriter are implemented by the vk, yadisk,
// s3store and manifest packages:
//
//	folder := model.DestinationFolder(root, "145001838", "profile")
//	state, err := store.EnsureFolder(ctx, folder)
package model
