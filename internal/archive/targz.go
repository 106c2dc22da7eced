// Package archive packs and unpacks the gzip-compressed tar archives used by
// directory volume specs and response capture.
package archive

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/runbox/runbox/internal/model"
)

// Pack archives the directory tree rooted at dir into a gzip-compressed tar
// stream. Entry names are relative to dir and file modes are preserved.
func Pack(dir string) ([]byte, error) {
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("could not relativize %q: %w", path, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("could not stat %q: %w", path, err)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("could not read link %q: %w", path, err)
			}
		}

		header, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("could not create tar header for %q: %w", path, err)
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("could not write tar header for %q: %w", path, err)
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("could not open %q: %w", path, err)
		}
		defer f.Close()

		if _, err := io.Copy(tw, f); err != nil {
			return fmt.Errorf("could not archive %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish tar stream: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return nil, fmt.Errorf("could not finish gzip stream: %w", err)
	}

	return buf.Bytes(), nil
}

// Unpack extracts a gzip-compressed tar archive into dst, preserving relative
// paths and permissions. Every entry is verified to stay inside dst before
// anything is written; archives with escaping paths or links are rejected.
func Unpack(data []byte, dst string) error {
	gzr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("content is not a valid gzip stream: %w", model.ErrNotValid)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("content is not a valid tar archive: %w", model.ErrNotValid)
		}

		target, err := securePath(dst, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("could not create directory %q: %w", target, err)
			}

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("could not create parent directory for %q: %w", target, err)
			}
			if err := writeFile(target, tr, os.FileMode(header.Mode)); err != nil {
				return err
			}

		case tar.TypeSymlink:
			// Links must resolve inside the target directory too, otherwise a
			// later write through the link could escape it.
			resolved := filepath.Join(filepath.Dir(target), header.Linkname)
			if filepath.IsAbs(header.Linkname) || !strings.HasPrefix(resolved, filepath.Clean(dst)+string(os.PathSeparator)) {
				return fmt.Errorf("archive entry %q links outside the target directory: %w", header.Name, model.ErrNotValid)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("could not create parent directory for %q: %w", target, err)
			}
			if err := os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("could not create symlink %q: %w", target, err)
			}

		default:
			// Hard links, devices and the like are not expected in payload
			// archives.
			return fmt.Errorf("archive entry %q has unsupported type %d: %w", header.Name, header.Typeflag, model.ErrNotValid)
		}
	}
}

// securePath resolves an archive entry name against dst and verifies the
// result stays inside dst.
func securePath(dst, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q is absolute: %w", name, model.ErrNotValid)
	}

	target := filepath.Join(dst, filepath.FromSlash(name))
	if target != filepath.Clean(dst) && !strings.HasPrefix(target, filepath.Clean(dst)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the target directory: %w", name, model.ErrNotValid)
	}

	return target, nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) error {
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("could not create file %q: %w", target, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("could not write file %q: %w", target, err)
	}

	// The mode passed to OpenFile is masked by the umask, set it explicitly.
	if err := f.Chmod(mode); err != nil {
		return fmt.Errorf("could not set mode on %q: %w", target, err)
	}
	return nil
}
