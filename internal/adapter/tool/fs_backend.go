package tool

import "os"

// FilesystemBackend abstracts the file I/O the filesystem tools perform.
type FilesystemBackend interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	ReadDir(path string) ([]os.DirEntry, error)
	Stat(path string) (os.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	// Name returns the backend identifier (e.g. "local").
	Name() string
}
