package preview

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store is the on-disk home of preview bytes. The cache is the sole owner of
// stored files; nothing else may delete them.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "ocr_preview_cache")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create preview cache dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Add copies src into the cache directory under a unique name and returns the
// destination path.
func (s *Store) Add(src string) (string, error) {
	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".pdf"
	}
	dest := filepath.Join(s.dir, uuid.New().String()+ext)

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open preview source: %w", err)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create cached preview: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return "", fmt.Errorf("copy preview bytes: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return "", fmt.Errorf("flush cached preview: %w", err)
	}
	return dest, nil
}

// Remove deletes a cached file, best-effort. Cleanup failures are logged and
// swallowed; a leaked temp file must never fail a processing request.
func (s *Store) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("preview.store.remove_failed", "path", path, "error", err)
	}
}
