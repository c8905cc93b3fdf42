// Package localfs is a capture source over a local directory, typically an SFTP chroot
package localfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"sftpetl/internal/adapters/capture"
	"sftpetl/internal/core/layers"
	perr "sftpetl/internal/platform/errors"
)

// Source reads files under Root whose base name matches Glob (empty matches all)
type Source struct {
	Root string
	Glob string

	fsys fs.FS
}

// New validates the glob and returns a Source rooted at dir
func New(dir, glob string) (*Source, error) {
	if dir == "" {
		return nil, perr.Configf("localfs: empty root directory")
	}
	if glob != "" {
		if _, err := path.Match(glob, ""); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeConfiguration, "localfs: bad glob %q", glob)
		}
	}
	return &Source{Root: dir, Glob: glob, fsys: os.DirFS(dir)}, nil
}

// Name implements capture.Source
func (s *Source) Name() string { return "localfs" }

// List walks Root and returns regular files matching Glob, skipping dot directories
func (s *Source) List(ctx context.Context) ([]capture.FileRef, error) {
	var out []capture.FileRef
	err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			if p != "." && d.Name()[0] == '.' {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !s.matches(p) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, capture.FileRef{Path: p, ModificationTime: info.ModTime().UTC(), Length: info.Size()})
		return nil
	})
	if err != nil {
		return nil, capture.Errf(err, s.Root, "localfs.list")
	}
	capture.SortRefs(out)
	return out, nil
}

// Stat implements capture.Source
func (s *Source) Stat(_ context.Context, p string) (capture.FileRef, error) {
	if !fs.ValidPath(p) {
		return capture.FileRef{}, perr.InvalidArgf("localfs: invalid path %q", p)
	}
	info, err := fs.Stat(s.fsys, p)
	if err != nil {
		return capture.FileRef{}, s.mapErr(err, p, "localfs.stat")
	}
	if !info.Mode().IsRegular() {
		return capture.FileRef{}, perr.InvalidArgf("localfs: %s is not a regular file", p)
	}
	return capture.FileRef{Path: p, ModificationTime: info.ModTime().UTC(), Length: info.Size()}, nil
}

// Read implements capture.Source
func (s *Source) Read(ctx context.Context, ref capture.FileRef) (layers.RawFileRecord, error) {
	if err := ctx.Err(); err != nil {
		return layers.RawFileRecord{}, err
	}
	b, err := fs.ReadFile(s.fsys, ref.Path)
	if err != nil {
		return layers.RawFileRecord{}, s.mapErr(err, ref.Path, "localfs.read")
	}
	return capture.Record(ref, b), nil
}

// AbsPath returns the on-disk path for ref, used in operator logs
func (s *Source) AbsPath(ref capture.FileRef) string {
	return filepath.Join(s.Root, filepath.FromSlash(ref.Path))
}

func (s *Source) matches(p string) bool {
	if s.Glob == "" {
		return true
	}
	ok, _ := path.Match(s.Glob, path.Base(p))
	return ok
}

func (s *Source) mapErr(err error, p, op string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return perr.WithOp(perr.Wrapf(err, perr.ErrorCodeNotFound, "capture %s: not found", p), op)
	}
	return capture.Errf(err, p, op)
}

var _ capture.Source = (*Source)(nil)
