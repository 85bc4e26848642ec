// Package docstore abstracts where submitted document bytes live. Jobs
// carry an opaque ref; the store resolves it to bytes plus a MIME hint.
package docstore

import (
	"context"
)

type Store interface {
	// Put stores document bytes and returns the ref to submit with a job.
	Put(ctx context.Context, name string, data []byte, mimeHint string) (ref string, err error)
	// Get resolves a ref to the document bytes and the MIME hint recorded
	// at Put time (may be empty).
	Get(ctx context.Context, ref string) (data []byte, mimeHint string, err error)
}
