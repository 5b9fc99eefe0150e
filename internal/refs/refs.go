// Package refs stores branch pointers as text files under refs/ and the
// symbolic HEAD file naming the checked-out branch.
package refs

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"grit/internal/errors"
	"grit/internal/safefile"
)

// Store reads and writes branch refs and HEAD. A ref holds a commit hash or
// the empty string for a branch with no commits yet.
type Store struct {
	dir      string
	headFile string
}

func NewStore(dir, headFile string) *Store {
	return &Store{dir: dir, headFile: headFile}
}

// Head returns the name of the currently checked-out branch.
func (s *Store) Head() (string, error) {
	data, err := os.ReadFile(s.headFile)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// SetHead points the symbolic HEAD at the named branch.
func (s *Store) SetHead(branch string) error {
	return safefile.WriteFile(s.headFile, []byte(branch), 0o644)
}

// Exists reports whether the named branch ref is present.
func (s *Store) Exists(branch string) bool {
	_, err := os.Stat(filepath.Join(s.dir, branch))
	return err == nil
}

// Resolve returns the commit hash the named branch points at.
func (s *Store) Resolve(branch string) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, branch))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.BranchNotFound(branch)
		}
		return "", fmt.Errorf("reading ref for branch %s: %w", branch, err)
	}
	hash := strings.TrimSpace(string(data))
	if hash != "" && len(hash) != sha1.Size*2 {
		return "", errors.CorruptObject(fmt.Sprintf("ref %s holds an invalid hash", branch), nil)
	}
	return hash, nil
}

// Set moves the named branch ref to hash. The write is an atomic replace so a
// crash never leaves a partially written ref.
func (s *Store) Set(branch, hash string) error {
	return safefile.WriteFile(filepath.Join(s.dir, branch), []byte(hash), 0o644)
}

// Create adds a new branch ref pointing at hash.
func (s *Store) Create(branch, hash string) error {
	if s.Exists(branch) {
		return errors.BranchExists(branch)
	}
	return s.Set(branch, hash)
}

// Delete removes the named branch ref. Callers guard against deleting the
// checked-out branch.
func (s *Store) Delete(branch string) error {
	if err := os.Remove(filepath.Join(s.dir, branch)); err != nil {
		if os.IsNotExist(err) {
			return errors.BranchNotFound(branch)
		}
		return fmt.Errorf("deleting branch %s: %w", branch, err)
	}
	return nil
}

// List returns all branch names, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading refs directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
