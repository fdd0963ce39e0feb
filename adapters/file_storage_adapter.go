package adapters

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileStorageAdapter is the default storage adapter implementation using file system.
// Stores all keys as a single JSON object in a file.
type FileStorageAdapter struct {
	fs       afero.Fs
	filepath string

	mu     sync.Mutex
	values map[string]string
}

// Ensure FileStorageAdapter implements StorageAdapter interface
var _ StorageAdapter = (*FileStorageAdapter)(nil)

// NewFileStorageAdapter creates a new FileStorageAdapter on the OS filesystem.
//
// Parameters:
//   - filepath: Path to the file where values will be stored
func NewFileStorageAdapter(filepath string) *FileStorageAdapter {
	return NewFileStorageAdapterFs(afero.NewOsFs(), filepath)
}

// NewFileStorageAdapterFs creates a FileStorageAdapter on the given filesystem.
func NewFileStorageAdapterFs(fs afero.Fs, filepath string) *FileStorageAdapter {
	return &FileStorageAdapter{fs: fs, filepath: filepath}
}

// load reads the file once. A missing file is an empty store.
func (f *FileStorageAdapter) load() error {
	if f.values != nil {
		return nil
	}
	data, err := afero.ReadFile(f.fs, f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			f.values = make(map[string]string)
			return nil
		}
		return err
	}
	values := make(map[string]string)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
	}
	f.values = values
	return nil
}

// flush writes the whole map to a temporary file and renames it into place.
func (f *FileStorageAdapter) flush(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.filepath); dir != "." {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.filepath + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return f.fs.Rename(tmp, f.filepath)
}

// Get returns the value stored under key.
func (f *FileStorageAdapter) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

// Set stores value under key and rewrites the file.
func (f *FileStorageAdapter) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}

	next := make(map[string]string, len(f.values)+1)
	for k, v := range f.values {
		next[k] = v
	}
	next[key] = value
	if err := f.flush(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// Remove deletes key and rewrites the file.
func (f *FileStorageAdapter) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}

	next := make(map[string]string, len(f.values))
	for k, v := range f.values {
		if k != key {
			next[k] = v
		}
	}
	if err := f.flush(next); err != nil {
		return err
	}
	f.values = next
	return nil
}

// Keys lists all stored keys.
func (f *FileStorageAdapter) Keys() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	return keys, nil
}
