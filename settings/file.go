package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const fileFormatVersion = 1

type fileImage struct {
	Version uint16              `cbor:"1,keyasint"`
	Entries map[uint16][][]byte `cbor:"2,keyasint"`
}

// File is a Store persisted as one CBOR document. Every change rewrites
// the whole file through a temporary file and rename.
type File struct {
	path string
	mem  *Memory
}

var _ Store = (*File)(nil)

// OpenFile loads path, starting empty when it does not exist.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, mem: NewMemory()}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var img fileImage
	if err := Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", path, err)
	}
	if img.Version != fileFormatVersion {
		return nil, fmt.Errorf("settings: %s: unsupported format version %d", path, img.Version)
	}
	f.mem.restore(img.Entries)
	return f, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) Get(key uint16, index int) ([]byte, error) {
	return f.mem.Get(key, index)
}

func (f *File) Set(key uint16, value []byte) error {
	if err := f.mem.Set(key, value); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) Add(key uint16, value []byte) error {
	if err := f.mem.Add(key, value); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) Delete(key uint16, index int) error {
	if err := f.mem.Delete(key, index); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) Wipe() error {
	if err := f.mem.Wipe(); err != nil {
		return err
	}
	return f.flush()
}

func (f *File) flush() error {
	data, err := Marshal(fileImage{Version: fileFormatVersion, Entries: f.mem.snapshot()})
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: %w", err)
	}
	return nil
}
