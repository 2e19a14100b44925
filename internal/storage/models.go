package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SourceFile is an ingested source document: the original binary content
// plus the metadata needed to hand it back to the client.
type SourceFile struct {
	ID          string
	DisplayName string
	MimeType    string
	Content     []byte
	CreatedAt   time.Time
}

// SourceFileInfo is SourceFile metadata without the blob, plus the number
// of fragment and table records currently referencing it.
type SourceFileInfo struct {
	ID          string
	DisplayName string
	MimeType    string
	SizeBytes   int64
	Fragments   int
	Tables      int
	CreatedAt   time.Time
}
