package catalog

import (
	"strconv"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/model"
)

// Reduce picks the canonical rendition of a record.
//
// Variants are scanned in order. A zero-height variant always wins and the
// last one seen takes precedence over earlier ones. Without zero-height
// variants the strictly tallest variant wins, keeping the first on ties.
//
// A record with no variants, or whose chosen variant has no URL, yields a
// DATA_QUALITY error. The returned CanonicalPhoto is still populated so the
// caller can report which photo was skipped.
func Reduce(rec model.RawPhotoRecord) (model.CanonicalPhoto, error) {
	var (
		maxHeight int
		best      *model.SizeVariant
		zero      *model.SizeVariant
	)

	for i := range rec.Variants {
		v := &rec.Variants[i]
		if v.Height == 0 {
			zero = v
			continue
		}
		if v.Height > maxHeight {
			maxHeight = v.Height
			best = v
		}
	}

	if zero != nil {
		best = zero
	}

	photo := model.CanonicalPhoto{
		CreatedAt: rec.CreatedAt,
		BaseName:  strconv.Itoa(rec.Likes),
	}
	if best != nil {
		photo.SourceURL = best.URL
		photo.SizeType = best.Type
	}

	if len(rec.Variants) == 0 {
		return photo, errors.Errorf(errors.KindDataQuality, "reduce", "photo %d has no size variants", rec.ID)
	}
	if photo.SourceURL == "" {
		return photo, errors.Errorf(errors.KindDataQuality, "reduce", "photo %d: selected size %q has no url", rec.ID, photo.SizeType)
	}

	return photo, nil
}

// ReduceAll reduces every record, preserving order. Records that fail to
// reduce are left out of the result and their errors returned alongside.
func ReduceAll(recs []model.RawPhotoRecord) ([]model.CanonicalPhoto, []error) {
	photos := make([]model.CanonicalPhoto, 0, len(recs))
	var errs []error

	for _, rec := range recs {
		photo, err := Reduce(rec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		photos = append(photos, photo)
	}

	return photos, errs
}
