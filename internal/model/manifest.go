package model

import "fmt"

// ManifestEntry describes one photo confirmed present at the destination.
// The JSON keys match the photos.json files written by earlier tooling.
type ManifestEntry struct {
	FileName string `json:"file_name"`
	Size     string `json:"size"`
}

// Manifest is the ordered list of photos verified present after a run.
type Manifest struct {
	Entries []ManifestEntry
}

// Len returns the number of entries.
func (m Manifest) Len() int {
	return len(m.Entries)
}

// ManifestKey identifies which manifest a run writes. There is one manifest
// per source account and album, overwritten by each run.
type ManifestKey struct {
	Account string
	Album   string
}

// FileName returns the manifest file name for the key.
func (k ManifestKey) FileName() string {
	return sanitizeFileName(fmt.Sprintf("%s_%s", k.Account, k.Album)) + ".json"
}
