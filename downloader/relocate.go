package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"translink/internal"
	"translink/utils"
)

// SharedDirStore copies finished downloads into a user-visible directory,
// sorted into collections by media type.
type SharedDirStore struct {
	Dir     string
	fileOps *utils.FileOperations
}

// NewSharedDirStore creates a store rooted at dir
func NewSharedDirStore(dir string) *SharedDirStore {
	return &SharedDirStore{Dir: dir, fileOps: utils.NewFileOperations()}
}

// Import implements internal.MediaStore. Existing files are never
// overwritten: a numeric suffix is added instead.
func (s *SharedDirStore) Import(ctx context.Context, path, mimeType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.Dir == "" {
		return "", internal.NewValidationError("shared_dir", "is not configured")
	}

	dir := filepath.Join(s.Dir, collectionFor(mimeType))
	target, err := s.freeName(dir, filepath.Base(path))
	if err != nil {
		return "", err
	}
	if err := s.fileOps.CopyFile(path, target); err != nil {
		return "", fmt.Errorf("failed to copy into shared storage: %w", err)
	}
	return target, nil
}

func (s *SharedDirStore) freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for i := 1; s.fileOps.FileExists(candidate); i++ {
		if i > 999 {
			return "", fmt.Errorf("no free name for %s in %s", name, dir)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext))
	}
	return candidate, nil
}

func collectionFor(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "Pictures"
	case strings.HasPrefix(mimeType, "audio/"):
		return "Music"
	default:
		return "Documents"
	}
}
