// Package storage provides the artifact store for generated report
// documents.
//
// Two implementations back the Storage interface: LocalStorage writes to a
// directory on disk for development, R2Storage writes to Cloudflare R2
// (S3-compatible) for production. Job rows carry only the artifact key;
// the bytes live here.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Storage stores and retrieves report artifacts. All methods are
// context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key. Returns ErrKeyExists if the
	// key is already taken and opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key. The caller must close
	// the reader. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key. Idempotent: no
	// error if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType is the MIME type of the object.
	ContentType string

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string // empty for local storage
}

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where artifacts are stored.
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the AWS SDK; R2 accepts "auto".
	Region string
}

// Provider names accepted in configuration.
const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// ReportKey generates the storage key for a job's rendered report.
// Format: reports/{jobID}/{uuid}.{ext}
func ReportKey(jobID uuid.UUID, ext string) string {
	return fmt.Sprintf("reports/%s/%s.%s", jobID, uuid.New(), ext)
}
