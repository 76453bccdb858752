// Package archive is the content-addressed blob store for raw fetched
// payloads. Blobs live under a single directory keyed by SHA-256; a per
// resource pointer file maps the resource id to its blob. Identical payloads
// share one blob.
package archive

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/neoalexandria/backend/internal/platform/apierr"
	"github.com/neoalexandria/backend/internal/platform/envutil"
	"github.com/neoalexandria/backend/internal/platform/logger"
)

type Store struct {
	log *logger.Logger
	dir string
}

func New(baseLog *logger.Logger) (*Store, error) {
	dir := envutil.Str("ARCHIVE_DIR", "data/archive")
	for _, sub := range []string{"blobs", "refs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, apierr.New(apierr.KindInternal, fmt.Errorf("archive dir: %w", err))
		}
	}
	return &Store{log: baseLog.With("component", "Archive"), dir: dir}, nil
}

// Put stores raw bytes for a resource and returns the content digest.
// Re-putting the same resource replaces its pointer, not the blob.
func (s *Store) Put(resourceID uuid.UUID, raw []byte) (string, error) {
	sum := sha256.Sum256(raw)
	digest := hex.EncodeToString(sum[:])

	blobPath := s.blobPath(digest)
	if _, err := os.Stat(blobPath); os.IsNotExist(err) {
		tmp := blobPath + ".tmp"
		if err := os.WriteFile(tmp, raw, 0o644); err != nil {
			return "", apierr.New(apierr.KindInternal, err)
		}
		if err := os.Rename(tmp, blobPath); err != nil {
			return "", apierr.New(apierr.KindInternal, err)
		}
	}
	if err := os.WriteFile(s.refPath(resourceID), []byte(digest), 0o644); err != nil {
		return "", apierr.New(apierr.KindInternal, err)
	}
	return digest, nil
}

// Get returns the raw bytes archived for a resource.
func (s *Store) Get(resourceID uuid.UUID) ([]byte, error) {
	ref, err := os.ReadFile(s.refPath(resourceID))
	if os.IsNotExist(err) {
		return nil, apierr.Newf(apierr.KindNotFound, "no archived payload for resource %s", resourceID)
	}
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, err)
	}
	digest := strings.TrimSpace(string(ref))
	raw, err := os.ReadFile(s.blobPath(digest))
	if os.IsNotExist(err) {
		return nil, apierr.Newf(apierr.KindNotFound, "archive blob %s missing for resource %s", digest, resourceID)
	}
	if err != nil {
		return nil, apierr.New(apierr.KindInternal, err)
	}
	return raw, nil
}

// Delete drops the resource's pointer. Blobs are shared and stay behind;
// orphans are cheap and a sweep can reclaim them later.
func (s *Store) Delete(resourceID uuid.UUID) error {
	err := os.Remove(s.refPath(resourceID))
	if err != nil && !os.IsNotExist(err) {
		return apierr.New(apierr.KindInternal, err)
	}
	return nil
}

func (s *Store) blobPath(digest string) string {
	return filepath.Join(s.dir, "blobs", digest)
}

func (s *Store) refPath(id uuid.UUID) string {
	return filepath.Join(s.dir, "refs", id.String())
}
