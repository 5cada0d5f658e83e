// Package romfile reads cartridge images from disk, unpacking the archive
// formats ROM collections are usually distributed in.
package romfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/ulikunitz/xz"
)

// ErrNoROM is returned for archives that hold no file.
var ErrNoROM = errors.New("romfile: archive holds no ROM")

// maxROMSize bounds decompressed images; the largest MBC5 cartridge is 8MiB.
const maxROMSize = 8 << 20

// Load reads the file at path, decompressing it when the extension names
// a known container: .gz, .xz, .zip or .7z. Anything else is returned as is.
func Load(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(filepath.Base(path), data)
}

// Decode unpacks data according to the extension of name.
func Decode(name string, data []byte) ([]byte, error) {
	var (
		r   io.Reader
		err error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		r, err = gzip.NewReader(bytes.NewReader(data))
	case ".xz":
		r, err = xz.NewReader(bytes.NewReader(data))
	case ".zip":
		r, err = openZip(data)
	case ".7z":
		r, err = open7z(data)
	default:
		return data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	rom, err := io.ReadAll(io.LimitReader(r, maxROMSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", name, err)
	}
	if len(rom) > maxROMSize {
		return nil, fmt.Errorf("decompressing %s: image larger than %d bytes", name, maxROMSize)
	}
	return rom, nil
}

// pick returns the index of the entry to load: the first one with a ROM
// extension, or the first regular file.
func pick(names []string, dirs []bool) int {
	first := -1
	for i, name := range names {
		if dirs[i] {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".gb", ".gbc":
			return i
		}
		if first < 0 {
			first = i
		}
	}
	return first
}

func openZip(data []byte) (io.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	names := make([]string, len(zr.File))
	dirs := make([]bool, len(zr.File))
	for i, f := range zr.File {
		names[i] = f.Name
		dirs[i] = f.FileInfo().IsDir()
	}

	i := pick(names, dirs)
	if i < 0 {
		return nil, ErrNoROM
	}
	return zr.File[i].Open()
}

func open7z(data []byte) (io.Reader, error) {
	sr, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	names := make([]string, len(sr.File))
	dirs := make([]bool, len(sr.File))
	for i, f := range sr.File {
		names[i] = f.Name
		dirs[i] = f.FileInfo().IsDir()
	}

	i := pick(names, dirs)
	if i < 0 {
		return nil, ErrNoROM
	}
	return sr.File[i].Open()
}
