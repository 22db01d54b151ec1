package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DocumentStore keeps uploaded documents until their extraction job has run.
type DocumentStore interface {
	Save(jobID uuid.UUID, payload []byte) (string, error)
	Load(path string) ([]byte, error)
	Remove(path string) error
}

// LocalStore writes one file per job under a root directory.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Save writes the payload to <root>/<jobID>.pdf. The file is written under a
// temporary name first so a reader never sees a partial document.
func (s *LocalStore) Save(jobID uuid.UUID, payload []byte) (string, error) {
	path := filepath.Join(s.root, jobID.String()+".pdf")
	tmp := path + ".part"
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return "", fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: rename %s: %w", tmp, err)
	}
	return path, nil
}

func (s *LocalStore) Load(path string) ([]byte, error) {
	if !s.owns(path) {
		return nil, fmt.Errorf("storage: %s is outside %s", path, s.root)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// Remove deletes a stored document. Missing files are not an error.
func (s *LocalStore) Remove(path string) error {
	if !s.owns(path) {
		return fmt.Errorf("storage: %s is outside %s", path, s.root)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}

func (s *LocalStore) owns(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	return err == nil && rel != ".." && !filepath.IsAbs(rel) && len(rel) > 0 && rel[0] != '.'
}
