package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact references one produced file: a local path plus the public URL
// it is served under, and the URL it was captured from when applicable.
type Artifact struct {
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
	SourceURL string `json:"source_url,omitempty"`
}

// Store writes artifacts into a flat directory with randomized,
// timestamp-prefixed filenames and exposes them under a static prefix.
type Store struct {
	Dir          string
	PublicPrefix string
}

// NewStore ensures dir exists and returns a Store.
func NewStore(dir, publicPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir %s: %w", dir, err)
	}
	if publicPrefix == "" {
		publicPrefix = "/static"
	}
	return &Store{Dir: dir, PublicPrefix: strings.TrimRight(publicPrefix, "/")}, nil
}

// Save writes data as a new artifact with the given extension.
func (s *Store) Save(ext string, data []byte) (Artifact, error) {
	name := fmt.Sprintf("%d_%s.%s", time.Now().Unix(), uuid.NewString(), strings.TrimPrefix(ext, "."))
	path := filepath.Join(s.Dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Artifact{}, fmt.Errorf("write artifact: %w", err)
	}
	return Artifact{Path: path, PublicURL: s.PublicPrefix + "/" + name}, nil
}
