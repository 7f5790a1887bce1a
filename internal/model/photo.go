package model

import (
	"path"
	"regexp"
	"strings"
	"time"
)

// SizeVariant is one rendition of a photo as listed by the source catalog.
//
// A Height of 0 is not an error: the source uses it to mark the rendition
// that should be used as-is (typically the original upload).
type SizeVariant struct {
	// Width and Height are the rendition dimensions in pixels.
	Width  int
	Height int

	// URL is where the rendition can be downloaded from.
	URL string

	// Type is the source's size tag ("s", "m", "x", "w", ...).
	Type string
}

// RawPhotoRecord is a photo exactly as fetched from the source catalog.
//
// Records are immutable once fetched and live only for the duration of a run.
type RawPhotoRecord struct {
	// ID identifies the photo within its owner's account.
	ID int64

	// OwnerID and AlbumID locate the photo in the source.
	OwnerID string
	AlbumID string

	// Variants lists the available renditions in source order.
	Variants []SizeVariant

	// Likes is the popularity counter. It is a human-friendly label used
	// for naming and is not unique across photos.
	Likes int

	// CreatedAt is when the photo was uploaded.
	CreatedAt time.Time
}

// CanonicalPhoto is the single rendition chosen to represent a RawPhotoRecord.
type CanonicalPhoto struct {
	SourceURL string
	CreatedAt time.Time
	SizeType  string

	// BaseName is the name before collision resolution. Never empty.
	BaseName string
}

// NamedPhoto is a CanonicalPhoto with its final, run-unique file name.
type NamedPhoto struct {
	CanonicalPhoto

	// FileName includes the ".jpg" extension.
	FileName string
}

// DestinationFolder returns the folder photos of account/album are mirrored
// into, below an optional root. The result has no leading or trailing slash.
//
// Example:
//
//	DestinationFolder("backups", "145001838", "-6") // "backups/145001838/-6"
func DestinationFolder(root, account, album string) string {
	parts := []string{}
	for _, p := range strings.Split(strings.Trim(root, "/"), "/") {
		if p != "" {
			parts = append(parts, sanitizeFileName(p))
		}
	}
	parts = append(parts, sanitizeFileName(account), sanitizeFileName(album))
	return path.Join(parts...)
}

// ObjectPath joins a destination folder and a file name.
func ObjectPath(folder, fileName string) string {
	return path.Join(folder, fileName)
}

var (
	invalidChars     = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots     = regexp.MustCompile(`\.+$`)
	repeatedSpaceRun = regexp.MustCompile(`\s+`)
)

// sanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars) are replaced with underscore
//   - Trailing dots are removed
//   - Multiple whitespace is collapsed to single space
//   - Surrounding whitespace is removed
func sanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = repeatedSpaceRun.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}
