// Package archive bundles a collection directory into a tar.zst file.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// Directory writes every regular file under dir into a zstd-compressed tar at
// output, with entry names prefixed by the base name of dir. It returns the
// number of files written.
func Directory(dir, output string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%q is not a directory", dir)
	}

	tmp := output + ".partial"
	file, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	count, err := write(file, dir)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close archive: %w", closeErr)
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, output); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	return count, nil
}

func write(w io.Writer, dir string) (int, error) {
	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(encoder)
	prefix := filepath.Base(dir)

	count := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		header := &tar.Header{
			Name:     filepath.ToSlash(filepath.Join(prefix, rel)),
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("write header for %q: %w", rel, err)
		}
		src, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %q: %w", rel, err)
		}
		_, err = io.Copy(tw, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("copy %q: %w", rel, err)
		}
		count++
		return nil
	})
	if walkErr != nil {
		encoder.Close()
		return 0, walkErr
	}
	if err := tw.Close(); err != nil {
		encoder.Close()
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return 0, fmt.Errorf("close zstd: %w", err)
	}
	return count, nil
}
