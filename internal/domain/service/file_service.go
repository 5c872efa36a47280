package service

import (
	"context"
	"io"
)

// StoredObject describes an object written by a FileStorage.
type StoredObject struct {
	URL        string
	ObjectName string
	Size       int64
}

type FileStorage interface {
	// Upload writes r under folder and returns its public location. ext is
	// the file extension including the leading dot.
	Upload(ctx context.Context, r io.Reader, contentType, folder, ext string) (*StoredObject, error)
	Delete(ctx context.Context, fileURL string) error
}
