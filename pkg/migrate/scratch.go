package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scratch manages the local staging directory for object downloads.
//
// Objects are downloaded to a scratch file before upload so a failed upload
// leaves the payload on disk for inspection. Scratch paths are derived from
// bucket and key but flattened and sanitized, so object keys can never
// escape the scratch directory.
type Scratch struct {
	dir     string
	created bool
}

// NewScratch prepares a scratch directory. If dir is empty a fresh temp
// directory is created under the system temp root and removed on Cleanup
// when no files remain.
func NewScratch(dir string) (*Scratch, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "supamigrate-*")
		if err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		return &Scratch{dir: tmp, created: true}, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir %s: %w", dir, err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory path.
func (s *Scratch) Dir() string { return s.dir }

// maxScratchStem bounds the readable part of a scratch filename so long
// object keys stay within filesystem name limits.
const maxScratchStem = 180

// Path returns the scratch file path for an object. Path separators and
// other unsafe characters in the key are flattened so the result is always
// a direct child of the scratch directory. A short digest of the raw
// bucket and key is appended so distinct objects that flatten to the same
// name (a/b.txt vs a_b.txt) never share a scratch file.
func (s *Scratch) Path(bucket, key string) string {
	stem := sanitizeName(bucket) + "__" + sanitizeName(key)
	if len(stem) > maxScratchStem {
		stem = stem[:maxScratchStem]
	}
	sum := sha256.Sum256([]byte(bucket + "\x00" + key))
	return filepath.Join(s.dir, stem+"-"+hex.EncodeToString(sum[:4]))
}

// Cleanup removes the scratch directory if it was created by NewScratch
// and no files were left behind. Leftover files are preserved.
func (s *Scratch) Cleanup() error {
	if !s.created {
		return nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return nil
	}
	return os.Remove(s.dir)
}

// sanitizeName flattens a bucket or key into a safe single-level filename.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	// Guard against names that are only dots.
	if strings.Trim(out, ".") == "" {
		return "_"
	}
	return out
}
