package storage

import (
	"fmt"
	"io/fs"
	"os"
)

// FileSystem is the subset of file operations a snapshot file needs:
// whole-file reads, durable temp writes, and the publishing rename.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadFile(name string) ([]byte, error)

	// WriteFile must not return before data reaches stable storage
	WriteFile(name string, data []byte, perm fs.FileMode) error

	Rename(oldpath, newpath string) error
	Remove(name string) error
}

// OSFileSystem writes snapshots to the local disk
type OSFileSystem struct{}

func (fs *OSFileSystem) Stat(name string) (os.FileInfo, error) {
	return os.Stat(name)
}

func (fs *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile syncs before closing so a following rename never publishes a
// partially written snapshot.
func (fs *OSFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return f.Close()
}

func (fs *OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (fs *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}
