// Package rom loads game images for the emulator. Images are opaque; the only
// processing is unpacking a single-file archive.
package rom

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/cespare/xxhash/v2"
)

// MaxSize bounds the unpacked image (a CD image fits well below it).
const MaxSize = 1 << 30

var (
	ErrEmpty        = errors.New("rom: empty image")
	ErrEmptyArchive = errors.New("rom: archive contains no files")
	ErrTooLarge     = errors.New("rom: image too large")
)

type ROM struct {
	// Name is the file name the image was loaded from (no path).
	Name     string
	Contents []byte
	Hash     uint64
}

// HashString formats the content hash as 16 hex digits.
func (r *ROM) HashString() string {
	return fmt.Sprintf("%016x", r.Hash)
}

// New builds a ROM from a named upload, unpacking .zip, .gz and .7z archives
// to their first file.
func New(name string, contents []byte) (r *ROM, err error) {
	name = filepath.Base(name)
	if len(contents) == 0 {
		return nil, ErrEmpty
	}

	inner, data, err := unpack(name, contents)
	if err != nil {
		return nil, fmt.Errorf("rom: unpack %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	r = &ROM{
		Name:     inner,
		Contents: data,
		Hash:     xxhash.Sum64(data),
	}
	return
}

func unpack(name string, contents []byte) (string, []byte, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".zip":
		zr, err := zip.NewReader(bytes.NewReader(contents), int64(len(contents)))
		if err != nil {
			return "", nil, err
		}
		for _, f := range zr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return "", nil, err
			}
			defer rc.Close()
			data, err := readLimited(rc)
			return filepath.Base(f.Name), data, err
		}
		return "", nil, ErrEmptyArchive

	case ".gz":
		gr, err := gzip.NewReader(bytes.NewReader(contents))
		if err != nil {
			return "", nil, err
		}
		defer gr.Close()
		data, err := readLimited(gr)
		inner := gr.Name
		if inner == "" {
			inner = strings.TrimSuffix(name, filepath.Ext(name))
		}
		return filepath.Base(inner), data, err

	case ".7z":
		sr, err := sevenzip.NewReader(bytes.NewReader(contents), int64(len(contents)))
		if err != nil {
			return "", nil, err
		}
		for _, f := range sr.File {
			if f.FileInfo().IsDir() {
				continue
			}
			rc, err := f.Open()
			if err != nil {
				return "", nil, err
			}
			defer rc.Close()
			data, err := readLimited(rc)
			return filepath.Base(f.Name), data, err
		}
		return "", nil, ErrEmptyArchive
	}

	// not an archive:
	if len(contents) > MaxSize {
		return "", nil, ErrTooLarge
	}
	return name, contents, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
