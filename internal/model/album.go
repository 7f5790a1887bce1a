package model

// Album is a photo album as listed by the source catalog.
type Album struct {
	ID      string
	OwnerID string
	Title   string

	// Size is the number of photos in the album.
	Size int

	// System albums (profile photos, wall photos, saved photos) are
	// maintained by the source rather than created by the user.
	System bool
}
