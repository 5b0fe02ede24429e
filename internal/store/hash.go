package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash returns the hex sha256 of a scanned source. A source whose hash
// is unchanged since the last scan is skipped.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// Unchanged reports whether src was already scanned with the given hash.
func (s *Store) Unchanged(path, hash string) (bool, error) {
	src, err := s.SourceByPath(path)
	if err != nil {
		return false, err
	}
	return src != nil && src.Hash == hash, nil
}
