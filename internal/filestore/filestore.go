// Package filestore keeps uploaded attachments. Blobs are addressed by
// their sha256, metadata lives in the database under a separate file id.
package filestore

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"veranda/internal/models"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

const DefaultMaxBytes = 10 << 20

// FileStore is an interface for storing and retrieving files by their hash.
type FileStore interface {
	// Save is idempotent: an existing blob with the same hash is kept.
	Save(r io.Reader, hash string) error
	Get(hash string) (io.ReadCloser, error)
}

type MetadataStore interface {
	UpsertFileMetadata(meta models.FileMetadata) error
	GetFileMetadata(id string) (models.FileMetadata, error)
}

type Service struct {
	blobs    FileStore
	meta     MetadataStore
	maxBytes int64
	now      func() time.Time
}

func NewService(blobs FileStore, meta MetadataStore, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		blobs:    blobs,
		meta:     meta,
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Upload stores the content of r for userID and returns its metadata.
// The MIME type is sniffed from the content, never taken from the client.
func (s *Service) Upload(userID string, r io.Reader) (models.FileMetadata, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return models.FileMetadata{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return models.FileMetadata{}, fmt.Errorf("%w: empty upload", models.ErrInvalidArgument)
	}
	if int64(len(data)) > s.maxBytes {
		return models.FileMetadata{}, fmt.Errorf("%w: upload exceeds %d bytes", models.ErrInvalidArgument, s.maxBytes)
	}

	mime := "application/octet-stream"
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		mime = kind.MIME.Value
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if err := s.blobs.Save(bytes.NewReader(data), hash); err != nil {
		return models.FileMetadata{}, fmt.Errorf("%w: save blob: %w", models.ErrWriteFailure, err)
	}

	meta := models.FileMetadata{
		ID:        uuid.NewString(),
		Hash:      hash,
		MimeType:  mime,
		Size:      int64(len(data)),
		CreatedAt: s.now().UnixMilli(),
		UserID:    userID,
	}
	if err := s.meta.UpsertFileMetadata(meta); err != nil {
		return models.FileMetadata{}, err
	}
	return meta, nil
}

// Open returns the metadata and content of a file. The caller closes the reader.
func (s *Service) Open(id string) (models.FileMetadata, io.ReadCloser, error) {
	meta, err := s.meta.GetFileMetadata(id)
	if err != nil {
		return models.FileMetadata{}, nil, err
	}
	rc, err := s.blobs.Get(meta.Hash)
	if err != nil {
		return models.FileMetadata{}, nil, err
	}
	return meta, rc, nil
}
