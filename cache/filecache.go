package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
)

// FileStorage implements Storage with one JSON file per key.
type FileStorage struct {
	dir string

	// MaxBytes caps the total size of the record files; zero means unlimited.
	MaxBytes int64

	mu sync.Mutex
}

var errCorruptRecord = errors.New("corrupt record")

type fileRecord struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// NewFileStorage creates a file storage rooted at dir. If dir is empty,
// ~/.fetchkit_cache/local is used.
func NewFileStorage(dir string) (*FileStorage, error) {
	if dir == "" {
		usr, err := user.Current()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(usr.HomeDir, ".fetchkit_cache", "local")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	return &FileStorage{dir: dir}, nil
}

// Dir returns the storage directory.
func (fs *FileStorage) Dir() string {
	return fs.dir
}

// GetItem implements Storage. A record file that no longer decodes is
// removed and reported as absent.
func (fs *FileStorage) GetItem(_ context.Context, key string) ([]byte, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.path(key)
	rec, err := fs.read(path)
	switch {
	case err == nil:
		return rec.Value, true, nil
	case os.IsNotExist(err):
		return nil, false, nil
	case errors.Is(err, errCorruptRecord):
		return nil, false, fs.remove(path)
	default:
		return nil, false, err
	}
}

// SetItem implements Storage. Values are written to a temporary file and
// renamed into place.
func (fs *FileStorage) SetItem(_ context.Context, key string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path := fs.path(key)
	if fs.MaxBytes > 0 {
		used, err := fs.usage(path)
		if err != nil {
			return err
		}
		if used+int64(len(value)) > fs.MaxBytes {
			return ErrQuotaExceeded
		}
	}

	data, err := json.Marshal(fileRecord{Key: key, Value: value})
	if err != nil {
		return err
	}

	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// RemoveItem implements Storage
func (fs *FileStorage) RemoveItem(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.remove(fs.path(key))
}

// Keys implements Storage. Record files that cannot be decoded are removed.
func (fs *FileStorage) Keys(_ context.Context) ([]string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	names, err := fs.files()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(fs.dir, name)
		rec, err := fs.read(path)
		if errors.Is(err, errCorruptRecord) {
			if err := fs.remove(path); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			continue
		}
		keys = append(keys, rec.Key)
	}
	return keys, nil
}

func (fs *FileStorage) files() ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// usage returns the bytes held by every record except the one at skip.
func (fs *FileStorage) usage(skip string) (int64, error) {
	names, err := fs.files()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, name := range names {
		p := filepath.Join(fs.dir, name)
		if p == skip {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}

func (fs *FileStorage) read(path string) (*fileRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w %s: %v", errCorruptRecord, filepath.Base(path), err)
	}
	return &rec, nil
}

func (fs *FileStorage) remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// path maps a key to a file name. Keys are hashed so any string is a valid name.
func (fs *FileStorage) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(fs.dir, hex.EncodeToString(sum[:])+".json")
}

var _ Storage = (*FileStorage)(nil)
