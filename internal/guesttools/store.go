package guesttools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrNoSource is returned when no image URL is configured.
	ErrNoSource = errors.New("guesttools: no image source configured")

	// ErrChecksumMismatch is returned when the downloaded image does not
	// match the configured digest.
	ErrChecksumMismatch = errors.New("guesttools: image checksum mismatch")
)

// ImageSource describes where the guest tools image comes from.
type ImageSource struct {
	// URL is the download location.
	URL string

	// SHA256 is the expected hex digest. Empty disables verification.
	SHA256 string
}

// DiskImageStore keeps the guest tools image at a fixed path, downloading
// and verifying it on demand.
type DiskImageStore struct {
	path   string
	src    ImageSource
	client *http.Client
}

// NewDiskImageStore creates a store that places the image at path.
func NewDiskImageStore(path string, src ImageSource) *DiskImageStore {
	return &DiskImageStore{
		path:   path,
		src:    src,
		client: http.DefaultClient,
	}
}

// Path returns where the image is (or will be) placed.
func (s *DiskImageStore) Path() string {
	return s.path
}

// Exists reports whether the image is already in place.
func (s *DiskImageStore) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Fetch downloads the image, verifies its digest while streaming, and moves
// it into place atomically.
func (s *DiskImageStore) Fetch(ctx context.Context) error {
	if s.src.URL == "" {
		return ErrNoSource
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src.URL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s (URL: %s)", resp.Status, s.src.URL)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}

	// Write to a temp file first, then rename for atomicity.
	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(f, h), resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write image: %w", err)
	}

	if s.src.SHA256 != "" {
		got := hex.EncodeToString(h.Sum(nil))
		if !strings.EqualFold(got, s.src.SHA256) {
			os.Remove(tmpPath)
			return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, s.src.SHA256)
		}
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("place image: %w", err)
	}
	return nil
}
