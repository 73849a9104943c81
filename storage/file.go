package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const fileFormatVersion = "1.0"

// fileDocument is the on-disk YAML layout. Values are base64 so the profile
// blob survives YAML round-trips untouched.
type fileDocument struct {
	Version   string            `yaml:"version"`
	Timestamp time.Time         `yaml:"timestamp"`
	Entries   map[string]string `yaml:"entries"`
}

// FileStore persists values in a single YAML file readable only by its owner.
// Every Get re-reads the file so that external removal is observed.
type FileStore struct {
	lock sync.Mutex
	path string
}

// NewFileStore returns a FileStore writing to path. The parent directory is
// created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	doc, err := f.load()
	if err != nil {
		return nil, err
	}
	encoded, ok := doc.Entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUnavailable, key, err)
	}
	return value, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	doc.Entries[key] = base64.StdEncoding.EncodeToString(value)
	return f.commit(doc)
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	f.lock.Lock()
	defer f.lock.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Entries[key]; !ok {
		return nil
	}
	delete(doc.Entries, key)
	return f.commit(doc)
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) load() (*fileDocument, error) {
	empty := &fileDocument{
		Version: fileFormatVersion,
		Entries: make(map[string]string),
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return empty, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return empty, nil
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		// A corrupt file is treated as an empty session; the next write
		// replaces it.
		return empty, nil
	}
	if doc.Entries == nil {
		doc.Entries = make(map[string]string)
	}
	return &doc, nil
}

func (f *FileStore) commit(doc *fileDocument) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	doc.Version = fileFormatVersion
	doc.Timestamp = time.Now().UTC()
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.yaml")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
