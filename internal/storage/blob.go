package storage

import "io"

// BlobStore persists uploaded source files and generated papers.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
}
