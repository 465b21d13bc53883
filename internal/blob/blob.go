// Package blob stores observation image payloads outside the snapshot
// database. Records carry only attachment metadata; the bytes live behind
// this interface so the same record store works against local disk in the
// field and object storage when a workstation syncs.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete payload backend.
type Driver string

const (
	// DriverFilesystem stores payloads under a local directory. The
	// default in the field, where the device may be offline for weeks.
	DriverFilesystem Driver = "fs"
	// DriverS3 stores payloads in an S3-compatible bucket.
	DriverS3 Driver = "s3"
	// DriverMemory keeps payloads in process memory, for tests.
	DriverMemory Driver = "memory"
)

// PutOptions carries optional write parameters.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// Info describes one stored payload.
type Info struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size_bytes"`
	ContentType  string            `json:"content_type,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the payload backend interface.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	Driver() Driver
}

// ErrUnsupported is returned when a driver lacks an optional capability.
var ErrUnsupported = errors.New("blob: unsupported operation")

// ErrNotFound is returned when a key has no stored payload.
var ErrNotFound = errors.New("blob: not found")

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
