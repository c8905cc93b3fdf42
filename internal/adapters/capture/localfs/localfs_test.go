package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sftpetl/internal/adapters/capture"
	perr "sftpetl/internal/platform/errors"
	kit "sftpetl/internal/platform/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(t *testing.T, glob string) (*Source, string) {
	t.Helper()
	dir := kit.WriteFiles(t, map[string][]byte{
		"2024/01/b.csv.gpg": []byte("BBBB"),
		"a.csv.gpg":         []byte("AA"),
		"notes.txt":         []byte("skip me"),
		".staging/c.gpg":    []byte("hidden"),
		"empty.csv.gpg":     {},
	})
	s, err := New(dir, glob)
	require.NoError(t, err)
	return s, dir
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeConfiguration))

	_, err = New(t.TempDir(), "[")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeConfiguration))
}

func TestList_GlobSortAndHidden(t *testing.T) {
	s, _ := newSource(t, "*.gpg")
	assert.Equal(t, "localfs", s.Name())

	refs, err := s.List(context.Background())
	require.NoError(t, err)

	var paths []string
	for _, r := range refs {
		paths = append(paths, r.Path)
		assert.False(t, r.ModificationTime.IsZero())
	}
	assert.Equal(t, []string{"2024/01/b.csv.gpg", "a.csv.gpg", "empty.csv.gpg"}, paths)
	assert.EqualValues(t, 4, refs[0].Length)

	all, _ := newSource(t, "")
	refs, err = all.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, refs, 4)
}

func TestList_Canceled(t *testing.T) {
	s, _ := newSource(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.List(ctx)
	assert.Error(t, err)
}

func TestStatAndRead(t *testing.T) {
	s, dir := newSource(t, "")
	mt := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "a.csv.gpg"), mt, mt))

	ref, err := s.Stat(context.Background(), "a.csv.gpg")
	require.NoError(t, err)
	assert.Equal(t, capture.FileRef{Path: "a.csv.gpg", ModificationTime: mt, Length: 2}, ref)

	rec, err := s.Read(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, []byte("AA"), rec.Content)
	assert.Equal(t, mt, rec.ModificationTime)
	assert.Equal(t, filepath.Join(dir, "a.csv.gpg"), s.AbsPath(ref))

	rec, err = s.Read(context.Background(), capture.FileRef{Path: "empty.csv.gpg"})
	require.NoError(t, err)
	require.NotNil(t, rec.Content)
	assert.Empty(t, rec.Content)
}

func TestStatAndRead_Errors(t *testing.T) {
	s, _ := newSource(t, "")
	ctx := context.Background()

	_, err := s.Stat(ctx, "missing.gpg")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeNotFound))

	_, err = s.Stat(ctx, "../escape.gpg")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeInvalidArgument))

	_, err = s.Stat(ctx, "2024")
	assert.True(t, perr.IsCode(err, perr.ErrorCodeInvalidArgument))

	_, err = s.Read(ctx, capture.FileRef{Path: "missing.gpg"})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeNotFound))

	_, err = s.Read(ctx, capture.FileRef{Path: "2024"})
	assert.True(t, perr.IsCode(err, perr.ErrorCodeCapture))
}
