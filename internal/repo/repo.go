// Package repo ties the engine components together behind an explicit
// repository context: one Repo value is constructed per operation and passed
// to everything, instead of each component re-deriving the root from ambient
// process state.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"grit/internal/commit"
	"grit/internal/config"
	"grit/internal/errors"
	"grit/internal/index"
	"grit/internal/object"
	"grit/internal/refs"
	"grit/internal/worktree"
)

// MarkerDir is the reserved top-level directory identifying a repository root.
const MarkerDir = ".grit"

// Repo is the per-operation repository context.
type Repo struct {
	Root    string // working-tree root, the directory holding MarkerDir
	WorkDir string // directory the operation was invoked from
	Config  *config.Config
	Logger  *zap.Logger

	Objects *object.Store
	Commits *commit.Store
	Refs    *refs.Store
	Index   *index.Store
	Tree    *worktree.Sync
}

// FindRoot walks upward from startDir until it finds a directory containing
// the marker directory.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", startDir, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, MarkerDir)); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.NotARepository()
		}
		dir = parent
	}
}

// Open discovers the repository containing workDir and builds the component
// stores against its layout.
func Open(workDir string, logger *zap.Logger) (*Repo, error) {
	root, err := FindRoot(workDir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	meta := filepath.Join(root, MarkerDir)
	objects, err := object.NewStore(filepath.Join(meta, "blobs"), cfg.CompressionLevel, logger)
	if err != nil {
		return nil, err
	}
	commits, err := commit.NewStore(filepath.Join(meta, "commits"), logger)
	if err != nil {
		return nil, err
	}

	absWork, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", workDir, err)
	}

	return &Repo{
		Root:    root,
		WorkDir: absWork,
		Config:  cfg,
		Logger:  logger,
		Objects: objects,
		Commits: commits,
		Refs:    refs.NewStore(filepath.Join(meta, "refs"), filepath.Join(meta, "HEAD")),
		Index:   index.NewStore(filepath.Join(meta, "index"), objects, logger),
		Tree:    worktree.NewSync(root, absWork, objects, commits, logger),
	}, nil
}

// Init scaffolds a new repository at dir, creating the directory itself when
// missing. The default branch ref starts empty and HEAD points at it.
func Init(dir string, logger *zap.Logger) error {
	if dir == "" {
		dir = "."
	}

	meta := filepath.Join(dir, MarkerDir)
	if _, err := os.Stat(meta); err == nil {
		return errors.RepositoryExists(dir)
	}

	cfg := config.Default()

	for _, sub := range []string{meta, filepath.Join(meta, "blobs"), filepath.Join(meta, "commits"), filepath.Join(meta, "refs")} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", sub, err)
		}
	}
	if err := os.WriteFile(filepath.Join(meta, "refs", cfg.DefaultBranch), nil, 0o644); err != nil {
		return fmt.Errorf("creating default branch ref: %w", err)
	}
	if err := os.WriteFile(filepath.Join(meta, "HEAD"), []byte(cfg.DefaultBranch), 0o644); err != nil {
		return fmt.Errorf("creating HEAD: %w", err)
	}

	logger.Info("initialized repository",
		zap.String("dir", dir),
		zap.String("branch", cfg.DefaultBranch))
	return nil
}

// RelPath maps a user-supplied path (relative to WorkDir, or absolute) to the
// repo-relative slash form used as a tracked-path key.
func (r *Repo) RelPath(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.WorkDir, path)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(r.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the repository", path)
	}
	return filepath.ToSlash(rel), nil
}

// Abs maps a repo-relative slash path back to its working-tree location.
func (r *Repo) Abs(relPath string) string {
	return filepath.Join(r.Root, filepath.FromSlash(relPath))
}

// Head returns the current branch name, its tip hash, and the loaded tip
// commit (the virtual empty commit when the branch has no commits).
func (r *Repo) Head() (branch, hash string, tip *commit.Commit, err error) {
	branch, err = r.Refs.Head()
	if err != nil {
		return "", "", nil, err
	}
	hash, err = r.Refs.Resolve(branch)
	if err != nil {
		return "", "", nil, err
	}
	tip, err = r.Commits.Load(hash)
	if err != nil {
		return "", "", nil, err
	}
	return branch, hash, tip, nil
}
