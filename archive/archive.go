// Package archive bundles the files of an export into a zip archive.
package archive

import (
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/omniscale/osmextract/logging"
)

var log = logging.NewLogger("archive")

// BoundaryFile is the name of the request geometry in each archive.
const BoundaryFile = "clipping_boundary.geojson"

type Sizes struct {
	// Uncompressed is the sum of all bundled export files, without the
	// boundary file.
	Uncompressed int64
	Compressed   int64
	Files        int
}

// Bundle writes all files below dir and the request geometry into the
// zip archive dest. dest itself is skipped if it is inside dir.
func Bundle(dir, dest string, geometry []byte) (Sizes, error) {
	sizes := Sizes{}
	f, err := os.Create(dest)
	if err != nil {
		return sizes, errors.Wrapf(err, "creating archive %s", dest)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	absDest, _ := filepath.Abs(dest)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absDest {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if err := addFile(zw, path, filepath.ToSlash(rel), info); err != nil {
			return err
		}
		sizes.Uncompressed += info.Size()
		sizes.Files++
		return nil
	})
	if err != nil {
		return sizes, errors.Wrapf(err, "adding files of %s", dir)
	}

	w, err := zw.Create(BoundaryFile)
	if err != nil {
		return sizes, errors.Wrap(err, "adding boundary")
	}
	if _, err := w.Write(geometry); err != nil {
		return sizes, errors.Wrap(err, "adding boundary")
	}

	if err := zw.Close(); err != nil {
		return sizes, errors.Wrap(err, "writing archive")
	}
	if err := f.Close(); err != nil {
		return sizes, errors.Wrap(err, "writing archive")
	}

	fi, err := os.Stat(dest)
	if err != nil {
		return sizes, err
	}
	sizes.Compressed = fi.Size()
	log.Printf("archived %d files (%d bytes) into %s (%d bytes)",
		sizes.Files, sizes.Uncompressed, filepath.Base(dest), sizes.Compressed)
	return sizes, nil
}

func addFile(zw *zip.Writer, path, name string, info os.FileInfo) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, r)
	return err
}
