package imagestore

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store keeps rendered images as PNG files under a single flat directory and
// hands them back by name. Names are generated, never caller supplied.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = "data/images"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes raw image bytes and returns the generated file name.
func (s *Store) Save(img []byte) (string, error) {
	name := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(s.dir, name), img, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return name, nil
}

// SaveBase64 decodes a base64 payload and stores it.
func (s *Store) SaveBase64(data string) (string, error) {
	img, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode image payload: %w", err)
	}
	return s.Save(img)
}

// Load reads the named image. Names are flat; directory components in the
// argument are discarded before lookup.
func (s *Store) Load(name string) ([]byte, error) {
	img, err := os.ReadFile(s.Path(name))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return img, nil
}

// LoadBase64 reads the named image and returns it base64 encoded.
func (s *Store) LoadBase64(name string) (string, error) {
	img, err := s.Load(name)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(img), nil
}

// Path returns the on-disk path for a stored image name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filepath.Base(name))
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }
