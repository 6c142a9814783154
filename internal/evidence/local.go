package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	dErrors "dutyflow/pkg/domain-errors"
)

// LocalStore keeps evidence on the local filesystem and hands out URLs under
// baseURL. FileServer exposes the same tree read-only.
type LocalStore struct {
	root    string
	baseURL string
	limits  Limits
}

// NewLocalStore creates root if needed.
func NewLocalStore(root, baseURL string, limits Limits) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(root, KeyPrefix), 0o750); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/"), limits: limits}, nil
}

// Root is the directory served by FileServer.
func (s *LocalStore) Root() string {
	return s.root
}

// Upload writes f under a fresh key and returns its public URL. The write goes to a
// temporary file first so a failed upload never leaves a partial object behind.
func (s *LocalStore) Upload(ctx context.Context, f File) (string, error) {
	if err := s.limits.Check(f); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key := NewKey(f.Name)
	dst := filepath.Join(s.root, filepath.FromSlash(key))
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp evidence file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	body := f.Body
	if s.limits.MaxBytes > 0 {
		body = io.LimitReader(f.Body, s.limits.MaxBytes+1)
	}
	n, err := io.Copy(tmp, body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	if s.limits.MaxBytes > 0 && n > s.limits.MaxBytes {
		return "", dErrors.New(dErrors.CodeValidation, "evidence file is too large")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("store evidence: %w", err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete removes the object behind url. Unknown or foreign URLs are ignored.
func (s *LocalStore) Delete(_ context.Context, url string) error {
	key, ok := KeyFromURL(s.baseURL, url)
	if !ok {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete evidence: %w", err)
	}
	return nil
}
