package port

import "context"

// FileStorage defines file storage operations for generated documents
type FileStorage interface {
	Save(ctx context.Context, path string, content []byte) error
	Exists(ctx context.Context, path string) bool
	// Delete removes the file; a missing file is not an error
	Delete(ctx context.Context, path string) error
	GetFullPath(relativePath string) string
}
