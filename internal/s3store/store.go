// Package s3store mirrors photos into an S3-compatible bucket.
//
// Unlike Yandex Disk, S3 cannot fetch a URL on its own, so TransferFromURL
// streams the photo through this process: it opens the source, sniffs the
// content type from the first bytes and uploads the stream with PutObject.
// The upload has finished when TransferFromURL returns.
//
// S3 has no directories. EnsureFolder writes an empty "folder/" marker
// object so that an empty mirror is still visible in bucket browsers.
package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/http"
	"github.com/handiism/photo-mirror/internal/model"
)

const (
	// sniffLen is how many leading bytes are inspected for the content type.
	sniffLen = 512

	// maxBuffered is the largest source of unknown length that is read into
	// memory so it can be uploaded with a single PUT. Larger sources go up
	// as a multipart upload.
	maxBuffered = 16 << 20
)

// Config configures a Store.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// Timeout bounds each source download.
	Timeout time.Duration
}

// Store is an S3 model.Store.
type Store struct {
	client *minio.Client
	bucket string
	source *http.Client
	log    logrus.FieldLogger
}

// New creates a Store for cfg.Bucket. The bucket is created on the first
// EnsureFolder if it does not exist.
func New(cfg Config, log logrus.FieldLogger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.Errorf(errors.KindUnknown, "s3store", "endpoint and bucket are required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	var opts []http.Option
	if cfg.Timeout > 0 {
		opts = append(opts, http.WithTimeout(cfg.Timeout))
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		source: http.NewClient(opts...),
		log:    log.WithFields(logrus.Fields{"component": "s3store", "bucket": cfg.Bucket}),
	}, nil
}

// objectKey turns a store path into a bucket key.
func objectKey(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// EnsureFolder implements model.Store.
func (s *Store) EnsureFolder(ctx context.Context, folder string) (model.FolderState, error) {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return 0, classify("bucket exists", err)
	}
	if !ok {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return 0, classify("make bucket", err)
		}
		s.log.Info("bucket created")
	}

	marker := objectKey(folder) + "/"
	found, err := s.stat(ctx, marker)
	if err != nil {
		return 0, err
	}
	if found {
		return model.FolderExists, nil
	}

	_, err = s.client.PutObject(ctx, s.bucket, marker, bytes.NewReader(nil), 0, minio.PutObjectOptions{})
	if err != nil {
		return 0, classify("put "+marker, err)
	}
	s.log.WithField("folder", marker).Debug("folder marker written")
	return model.FolderCreated, nil
}

// Exists implements model.Store.
func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	return s.stat(ctx, objectKey(p))
}

func (s *Store) stat(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == nethttp.StatusNotFound {
		return false, nil
	}
	return false, classify("stat "+key, err)
}

// TransferFromURL implements model.Store by streaming the source into the
// bucket.
func (s *Store) TransferFromURL(ctx context.Context, p, sourceURL string) (model.TransferState, error) {
	key := objectKey(p)

	body, size, err := s.source.Open(ctx, sourceURL)
	if err != nil {
		// A missing source fails this photo only.
		if ctx.Err() == nil && !errors.IsTransient(err) {
			return model.TransferRejected, errors.Wrap(errors.KindRemote, "download "+sourceURL, err)
		}
		return model.TransferRejected, fmt.Errorf("download %s: %w", sourceURL, err)
	}
	defer body.Close()

	contentType, r, err := sniff(body)
	if err != nil {
		return model.TransferRejected, errors.Wrap(errors.KindRemoteTransient, "download "+sourceURL, err)
	}

	r, size, err = sized(r, size)
	if err != nil {
		return model.TransferRejected, errors.Wrap(errors.KindRemoteTransient, "download "+sourceURL, err)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return model.TransferRejected, classify("put "+key, err)
	}

	s.log.WithFields(logrus.Fields{
		"key":          key,
		"size":         info.Size,
		"content_type": contentType,
	}).Debug("object uploaded")
	return model.TransferAccepted, nil
}

// sniff detects the content type of r from its first bytes and returns a
// reader that still yields the whole stream.
func sniff(r io.Reader) (string, io.Reader, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", nil, err
	}
	buf = buf[:n]
	return mimetype.Detect(buf).String(), io.MultiReader(bytes.NewReader(buf), r), nil
}

// sized returns r with a known length when the source did not report one
// and fits in maxBuffered. Otherwise size stays negative.
func sized(r io.Reader, size int64) (io.Reader, int64, error) {
	if size >= 0 {
		return r, size, nil
	}
	buf, err := io.ReadAll(io.LimitReader(r, maxBuffered+1))
	if err != nil {
		return nil, 0, err
	}
	if len(buf) > maxBuffered {
		return io.MultiReader(bytes.NewReader(buf), r), -1, nil
	}
	return bytes.NewReader(buf), int64(len(buf)), nil
}

// classify maps an S3 error response onto an error kind.
func classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == 0:
		return errors.Wrap(errors.KindRemoteTransient, op, err)
	case resp.Code == "NoSuchBucket":
		return errors.Wrap(errors.KindNotFound, op, err)
	default:
		return errors.Wrap(http.KindForStatus(resp.StatusCode), op, err)
	}
}
