package blob

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestPutOpen(t *testing.T) {
	req := require.New(t)
	s, err := New(t.TempDir(), 1<<20)
	req.NoError(err)

	info, err := s.Put(bytes.NewReader(pngBytes))
	req.NoError(err)
	req.Equal("image/png", info.MIME)
	req.True(strings.HasSuffix(info.Ref, ".png"))
	req.True(ValidRef(info.Ref))
	req.EqualValues(len(pngBytes), info.Size)
	req.True(s.Exists(info.Ref))

	f, got, err := s.Open(info.Ref)
	req.NoError(err)
	defer f.Close()
	req.Equal("image/png", got.MIME)
	data, err := io.ReadAll(f)
	req.NoError(err)
	req.Equal(pngBytes, data)
}

func TestPutLimits(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	s, err := New(dir, 10)
	req.NoError(err)

	_, err = s.Put(strings.NewReader("this is longer than ten bytes"))
	req.ErrorIs(err, ErrTooLarge)

	_, err = s.Put(strings.NewReader(""))
	req.ErrorIs(err, ErrEmpty)

	entries, err := os.ReadDir(dir)
	req.NoError(err)
	req.Empty(entries)
}

func TestOpenRejectsBadRefs(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	s, err := New(dir, 1<<20)
	req.NoError(err)
	req.NoError(os.WriteFile(filepath.Join(dir, "secret"), []byte("x"), 0o600))

	for _, ref := range []string{"", "secret", "../secret", "00000000-0000-0000-0000-000000000000/../x"} {
		_, _, err := s.Open(ref)
		req.ErrorIs(err, ErrInvalidRef, ref)
	}
	_, _, err = s.Open("00000000-0000-0000-0000-000000000000.txt")
	req.ErrorIs(err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	req := require.New(t)
	s, err := New(t.TempDir(), 1<<20)
	req.NoError(err)

	info, err := s.Put(bytes.NewReader(pngBytes))
	req.NoError(err)
	req.NoError(s.Remove(info.Ref))
	req.False(s.Exists(info.Ref))
	req.NoError(s.Remove(info.Ref))
	req.ErrorIs(s.Remove("../secret"), ErrInvalidRef)
}
