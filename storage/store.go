// Package storage keeps uploaded images on local disk. Each collection is one
// flat directory under the root and the directory listing is the only index.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/folio/portfolio/models"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid filename")
	ErrTooLarge    = errors.New("file exceeds size limit")
	ErrNotImage    = errors.New("only image files are allowed")
)

// imageExts are the extensions a listing recognizes, compared lowercase.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

const tempPrefix = ".upload-"

// Store owns the collection directories below root.
type Store struct {
	root string
	now  func() time.Time
	rand func() int64
}

// New creates a Store rooted at root. Call Init before serving.
func New(root string) *Store {
	return &Store{
		root: root,
		now:  time.Now,
		rand: func() int64 { return rand.Int63n(1e9 + 1) },
	}
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory backing c.
func (s *Store) Dir(c models.Collection) string {
	return filepath.Join(s.root, c.Dir)
}

// Init creates every collection directory that does not exist yet.
func (s *Store) Init() error {
	for _, c := range models.Collections {
		dir := s.Dir(c)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", c.Name, err)
		}
	}
	return nil
}

// IsImageType reports whether a declared MIME type is accepted for upload.
func IsImageType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// GenerateName builds <field>-<unix millis>-<0..1e9><ext>, keeping the original extension as sent.
func (s *Store) GenerateName(c models.Collection, original string) string {
	return s.generateName(c, original, s.now())
}

func (s *Store) generateName(c models.Collection, original string, at time.Time) string {
	ext := filepath.Ext(original)
	if strings.ContainsAny(ext, `\/`) {
		ext = ""
	}
	return c.Field + "-" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + strconv.FormatInt(s.rand(), 10) + ext
}

// Save streams r into c under a generated name. At most limit bytes are accepted.
// On any failure nothing is left in the collection directory.
func (s *Store) Save(c models.Collection, original, mimeType string, r io.Reader, limit int64) (models.StoredFile, error) {
	if !IsImageType(mimeType) {
		return models.StoredFile{}, ErrNotImage
	}
	dir := s.Dir(c)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.StoredFile{}, err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*.tmp")
	if err != nil {
		return models.StoredFile{}, err
	}
	tmpPath := tmp.Name()
	// After a successful rename this is a no-op.
	defer os.Remove(tmpPath)

	written, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return models.StoredFile{}, fmt.Errorf("write upload: %w", err)
	}
	if written > limit {
		return models.StoredFile{}, ErrTooLarge
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return models.StoredFile{}, err
	}

	// The name, the mtime reported by List and the returned time all carry the same instant.
	at := s.now()
	if err := os.Chtimes(tmpPath, at, at); err != nil {
		return models.StoredFile{}, err
	}
	name := s.generateName(c, original, at)
	if err := os.Rename(tmpPath, filepath.Join(dir, name)); err != nil {
		return models.StoredFile{}, fmt.Errorf("store upload: %w", err)
	}
	return models.StoredFile{Filename: name, URL: c.URL(name), UploadedAt: at}, nil
}

// List returns the images in c ordered by filename, compared bytewise.
// A missing directory yields an empty list.
func (s *Store) List(c models.Collection) ([]models.StoredFile, error) {
	entries, err := os.ReadDir(s.Dir(c))
	if errors.Is(err, fs.ErrNotExist) {
		return []models.StoredFile{}, nil
	}
	if err != nil {
		return nil, err
	}

	files := make([]models.StoredFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between enumeration and stat
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		files = append(files, models.StoredFile{
			Filename:   e.Name(),
			URL:        c.URL(e.Name()),
			UploadedAt: info.ModTime(),
		})
	}
	return files, nil
}

// Current returns the last image List reports for c, or nil when there is none.
// Generated names lead with the upload millisecond, so this is the newest upload.
func (s *Store) Current(c models.Collection) (*models.StoredFile, error) {
	files, err := s.List(c)
	if err != nil || len(files) == 0 {
		return nil, err
	}
	last := files[len(files)-1]
	return &last, nil
}

// Delete removes filename from c.
func (s *Store) Delete(c models.Collection, filename string) error {
	if err := ValidateName(filename); err != nil {
		return err
	}
	path := filepath.Join(s.Dir(c), filename)
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		// lost a race with a concurrent delete
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ValidateName accepts only a single path element, so callers cannot escape the collection directory.
func ValidateName(filename string) error {
	switch {
	case filename == "", filename == ".", filename == "..":
		return ErrInvalidName
	case strings.ContainsAny(filename, "/\\\x00"):
		return ErrInvalidName
	}
	return nil
}
