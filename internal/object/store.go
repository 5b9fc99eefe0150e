// Package object implements the content-addressed blob store. An object is one
// file's bytes, DEFLATE-compressed and stored under a two-level sharded path
// keyed by the SHA-1 digest of its content.
package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"
	"go.uber.org/zap"

	"grit/internal/errors"
)

// Blob identifies one stored file content by its 40-character lowercase hex
// SHA-1 digest. It owns no other metadata; the digest-to-bytes mapping lives
// on disk under the store root.
type Blob struct {
	Hash string `json:"hash"`
}

// Store reads and writes compressed blob objects under a single root
// directory. It keeps no in-memory state across calls.
type Store struct {
	root   string
	level  int
	logger *zap.Logger
}

func NewStore(root string, level int, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating object store directory: %w", err)
	}
	if level < zlib.BestSpeed || level > zlib.BestCompression {
		level = zlib.DefaultCompression
	}
	return &Store{root: root, level: level, logger: logger}, nil
}

// Put streams the file at path through SHA-1 and returns its Blob. It does not
// persist anything; Write is the explicit persistence step.
func (s *Store) Put(path string) (Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Blob{}, errors.FileNotFound(path)
		}
		return Blob{}, errors.Wrap(errors.KindIO, fmt.Sprintf("opening %s for hashing", path), err)
	}
	defer f.Close()

	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return Blob{}, errors.Wrap(errors.KindIO, fmt.Sprintf("hashing %s", path), err)
	}

	return Blob{Hash: hex.EncodeToString(h.Sum(nil))}, nil
}

// shardPath maps a digest to root/<first 2 hex chars>/<remaining 38>.
func (s *Store) shardPath(hash string) (string, error) {
	if len(hash) != sha1.Size*2 {
		return "", errors.CorruptObject(fmt.Sprintf("invalid digest length %d", len(hash)), nil)
	}
	return filepath.Join(s.root, hash[:2], hash[2:]), nil
}

// Write compresses the bytes at srcPath and persists them under the blob's
// sharded path, creating missing parent directories.
func (s *Store) Write(b Blob, srcPath string) error {
	shard, err := s.shardPath(b.Hash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(shard), 0o755); err != nil {
		return fmt.Errorf("creating object shard directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return errors.Wrap(errors.KindIO, fmt.Sprintf("reading source %s", srcPath), err)
	}
	defer src.Close()

	dst, err := os.Create(shard)
	if err != nil {
		return fmt.Errorf("creating object file: %w", err)
	}

	zw, err := zlib.NewWriterLevel(dst, s.level)
	if err != nil {
		dst.Close()
		return fmt.Errorf("creating zlib writer: %w", err)
	}
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return errors.Wrap(errors.KindIO, fmt.Sprintf("compressing %s", srcPath), err)
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return fmt.Errorf("finalizing compression: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing object file: %w", err)
	}

	s.logger.Debug("wrote blob object", zap.String("hash", b.Hash))
	return nil
}

// Read decompresses the stored object and streams it to dstPath, overwriting
// any existing file there.
func (s *Store) Read(b Blob, dstPath string) error {
	zr, err := s.open(b)
	if err != nil {
		return err
	}
	defer zr.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dstPath, err)
	}
	if _, err := io.Copy(dst, zr); err != nil {
		dst.Close()
		return errors.Wrap(errors.KindIO, fmt.Sprintf("restoring %s", dstPath), err)
	}
	return dst.Close()
}

// Contents returns the decompressed object bytes. The merge engine uses this
// to build conflict-marker bodies.
func (s *Store) Contents(b Blob) ([]byte, error) {
	zr, err := s.open(b)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, errors.CorruptObject(fmt.Sprintf("decompressing %s", b.Hash), err)
	}
	return buf.Bytes(), nil
}

func (s *Store) open(b Blob) (io.ReadCloser, error) {
	shard, err := s.shardPath(b.Hash)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(shard)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ObjectNotFound(b.Hash)
		}
		return nil, fmt.Errorf("opening object %s: %w", b.Hash, err)
	}

	zr, err := zlib.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.CorruptObject(fmt.Sprintf("object %s is not a zlib stream", b.Hash), err)
	}
	return &objectReader{zr: zr, f: f}, nil
}

// Retrieve validates that an object with the given digest exists on disk and
// returns its Blob without reading the content.
func (s *Store) Retrieve(hash string) (Blob, error) {
	shard, err := s.shardPath(hash)
	if err != nil {
		return Blob{}, err
	}
	if _, err := os.Stat(shard); err != nil {
		if os.IsNotExist(err) {
			return Blob{}, errors.ObjectNotFound(hash)
		}
		return Blob{}, fmt.Errorf("checking object %s: %w", hash, err)
	}
	return Blob{Hash: hash}, nil
}

// ContentEquals recomputes the digest of otherPath and compares it with the
// blob's, without touching the stored compressed object.
func (s *Store) ContentEquals(b Blob, otherPath string) (bool, error) {
	other, err := s.Put(otherPath)
	if err != nil {
		return false, err
	}
	return other.Hash == b.Hash, nil
}

// Delete removes the blob's shard file. There is no reference counting:
// deleting a digest still referenced by a reachable commit breaks that
// commit's restorability.
func (s *Store) Delete(b Blob) error {
	shard, err := s.shardPath(b.Hash)
	if err != nil {
		return err
	}
	if err := os.Remove(shard); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting object %s: %w", b.Hash, err)
	}
	s.logger.Debug("deleted blob object", zap.String("hash", b.Hash))
	return nil
}

// objectReader closes both the zlib stream and the underlying shard file.
type objectReader struct {
	zr io.ReadCloser
	f  *os.File
}

func (r *objectReader) Read(p []byte) (int, error) {
	return r.zr.Read(p)
}

func (r *objectReader) Close() error {
	zerr := r.zr.Close()
	ferr := r.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
