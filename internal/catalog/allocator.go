package catalog

import (
	"fmt"
	"strconv"

	"github.com/handiism/photo-mirror/internal/model"
)

const fileExt = ".jpg"

// Allocate assigns every photo a file name unique within the batch.
//
// Photos are processed in order. The first photo with a given base name is
// named "<base>.jpg". A later photo with the same base name is named
// "<base>-<ts>.jpg" where ts is the Unix upload time of the previously
// allocated photo with that base name, and then becomes the entry later
// collisions are resolved against.
//
// If two photos share a base name and an upload time, the derived name is
// extended with "-2", "-3", ... until it is unused.
func Allocate(photos []model.CanonicalPhoto) []model.NamedPhoto {
	named := make([]model.NamedPhoto, 0, len(photos))

	// last maps a base name to the most recently allocated photo using it.
	last := make(map[string]model.NamedPhoto, len(photos))
	used := make(map[string]struct{}, len(photos))

	for _, photo := range photos {
		var name string
		prev, collides := last[photo.BaseName]
		if !collides {
			name = photo.BaseName + fileExt
		} else {
			name = photo.BaseName + "-" + strconv.FormatInt(prev.CreatedAt.Unix(), 10) + fileExt
		}
		name = uniqueName(name, used)

		np := model.NamedPhoto{CanonicalPhoto: photo, FileName: name}
		last[photo.BaseName] = np
		used[name] = struct{}{}
		named = append(named, np)
	}

	return named
}

// uniqueName returns name, or name with a numeric suffix before the
// extension if name is already in used.
func uniqueName(name string, used map[string]struct{}) string {
	if _, taken := used[name]; !taken {
		return name
	}
	stem := name[:len(name)-len(fileExt)]
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, fileExt)
		if _, taken := used[candidate]; !taken {
			return candidate
		}
	}
}
