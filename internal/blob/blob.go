// Package blob stores message attachments on the local filesystem. Messages
// carry only the opaque ref returned by Put.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned by Put when the content exceeds the store's size limit.
	ErrTooLarge   = errors.New("attachment too large")
	ErrEmpty      = errors.New("attachment is empty")
	ErrNotFound   = errors.New("attachment not found")
	ErrInvalidRef = errors.New("invalid attachment ref")
)

var refPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}(\.[a-z0-9]{1,8})?$`)

const sniffLen = 3072

// Info describes a stored attachment.
type Info struct {
	Ref  string
	MIME string
	Size int64
}

// Store keeps attachments as files named by their ref under a single directory.
type Store struct {
	dir     string
	maxSize int64
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string, maxSize int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Store{dir: dir, maxSize: maxSize}, nil
}

// MaxSize is the largest attachment Put accepts, in bytes.
func (s *Store) MaxSize() int64 { return s.maxSize }

// ValidRef reports whether ref has the shape Put produces.
func ValidRef(ref string) bool { return refPattern.MatchString(ref) }

// Put copies r into the store. The content type is sniffed from the leading
// bytes and decides the ref's extension.
func (s *Store) Put(r io.Reader) (*Info, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrEmpty
	}

	mt := mimetype.Detect(head)
	ref := uuid.NewString() + mt.Extension()

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	src := io.MultiReader(bytes.NewReader(head), r)
	written, err := io.Copy(tmp, io.LimitReader(src, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write attachment: %w", err)
	}
	if written > s.maxSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxSize)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref)); err != nil {
		return nil, fmt.Errorf("commit attachment: %w", err)
	}
	return &Info{Ref: ref, MIME: mt.String(), Size: written}, nil
}

// Open returns the attachment's content and metadata. The caller closes the file.
func (s *Store) Open(ref string) (*os.File, *Info, error) {
	if !ValidRef(ref) {
		return nil, nil, ErrInvalidRef
	}
	path := filepath.Join(s.dir, ref)
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open attachment: %w", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("stat attachment: %w", err)
	}
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("sniff attachment: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("rewind attachment: %w", err)
	}
	return f, &Info{Ref: ref, MIME: mt.String(), Size: fi.Size()}, nil
}

// Exists reports whether ref names a stored attachment.
func (s *Store) Exists(ref string) bool {
	if !ValidRef(ref) {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, ref))
	return err == nil
}

// Remove deletes the attachment named by ref. A missing attachment is not an error.
func (s *Store) Remove(ref string) error {
	if !ValidRef(ref) {
		return ErrInvalidRef
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove attachment: %w", err)
	}
	return nil
}
