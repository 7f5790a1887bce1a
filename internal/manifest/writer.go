// Package manifest persists run manifests as JSON files.
//
// There is one file per account and album, named after model.ManifestKey,
// holding an array of {"file_name", "size"} objects. Each run replaces the
// file wholesale.
package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	ioutils "github.com/handiism/photo-mirror/internal/io"
	"github.com/handiism/photo-mirror/internal/model"
)

// Writer is a model.ManifestWriter backed by a directory.
type Writer struct {
	fs  afero.Fs
	dir string
	log logrus.FieldLogger
}

// NewWriter creates a Writer storing manifests under dir on fs.
func NewWriter(fs afero.Fs, dir string, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Writer{fs: fs, dir: dir, log: log}
}

// Path returns the file a key's manifest is stored in.
func (w *Writer) Path(key model.ManifestKey) string {
	return filepath.Join(w.dir, key.FileName())
}

// Persist replaces the manifest for key with m.
func (w *Writer) Persist(ctx context.Context, key model.ManifestKey, m model.Manifest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	entries := m.Entries
	if entries == nil {
		entries = []model.ManifestEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	path := w.Path(key)
	if err := ioutils.WriteFileAtomic(w.fs, path, append(data, '\n')); err != nil {
		return fmt.Errorf("write manifest %s: %w", path, err)
	}

	w.log.WithFields(logrus.Fields{
		"path":    path,
		"entries": len(entries),
	}).Debug("manifest written")
	return nil
}

// Load reads the manifest for key. A missing file yields an empty manifest.
func (w *Writer) Load(key model.ManifestKey) (model.Manifest, error) {
	path := w.Path(key)
	ok, err := ioutils.Exists(w.fs, path)
	if err != nil {
		return model.Manifest{}, err
	}
	if !ok {
		return model.Manifest{}, nil
	}

	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return model.Manifest{}, err
	}
	var entries []model.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return model.Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return model.Manifest{Entries: entries}, nil
}
