package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

var (
	// ErrImageMissing indicates an image reference that cannot be loaded.
	ErrImageMissing = errors.New("image missing")
	// ErrInvalidImageRef indicates a reference that is not a bare file name.
	ErrInvalidImageRef = errors.New("invalid image reference")
	// ErrUnsupportedImage indicates a file extension that is not served.
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var allowedExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// ImageStore keeps uploaded character images as flat files in Dir. Image
// references are bare file names relative to Dir.
type ImageStore struct {
	Dir string
}

func NewImageStore(dir string) (*ImageStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("image dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create image dir: %w", err)
	}
	return &ImageStore{Dir: filepath.Clean(dir)}, nil
}

// SafeName turns a character name into a file name stem: lowercase, spaces
// become underscores, dots and anything outside letters, digits, '-' and
// '_' are dropped.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune('_')
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Save writes r under a name derived from the character name and returns the
// image reference. Existing files are never overwritten.
func (s *ImageStore) Save(name, ext string, r io.Reader) (string, error) {
	stem := SafeName(name)
	if stem == "" {
		return "", ErrInvalidName
	}
	ext = strings.ToLower(ext)
	if ext == "" {
		ext = ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !allowedExt[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, ext)
	}

	ref := stem + ext
	f, err := os.OpenFile(filepath.Join(s.Dir, ref), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		ref = stem + "_" + uuid.NewString()[:8] + ext
		f, err = os.OpenFile(filepath.Join(s.Dir, ref), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write image file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close image file: %w", err)
	}
	return ref, nil
}

// Path resolves a reference to a file path inside Dir.
func (s *ImageStore) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) {
		return "", ErrInvalidImageRef
	}
	return filepath.Join(s.Dir, ref), nil
}

// Check reports whether ref points to a readable, non-empty file.
func (s *ImageStore) Check(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrImageMissing, ref, err)
	}
	if info.IsDir() || info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrImageMissing, ref)
	}
	return nil
}

// Remove deletes a stored image. Removing a missing image is not an error.
func (s *ImageStore) Remove(ref string) error {
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}
