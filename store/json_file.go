package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// JsonFileStore stores each collection as a separate JSON file on disk.
//
// Layout:
//
//	data_dir/
//	  hawk.json          # "hawk" collection (user data)
//	  hawk.crypto.json   # "hawk.crypto" collection (key material)
//
// Every write goes to a temporary file that is renamed over the collection
// file, so a batch lands completely or not at all.
type JsonFileStore struct {
	mu  sync.RWMutex
	fs  afero.Fs
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	return NewJsonFileStoreFs(afero.NewOsFs(), dir)
}

// NewJsonFileStoreFs is like NewJsonFileStore but works on the given
// filesystem, which lets tests run against afero.NewMemMapFs.
func NewJsonFileStoreFs(fs afero.Fs, dir string) (*JsonFileStore, error) {
	if ok, err := afero.DirExists(fs, dir); err != nil {
		return nil, err
	} else if !ok {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return &JsonFileStore{fs: fs, dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *JsonFileStore) loadCollection(collection string) (map[string]string, error) {
	path := s.collectionPath(collection)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	var result map[string]string
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if result == nil {
		result = map[string]string{}
	}
	return result, nil
}

func (s *JsonFileStore) saveCollection(collection string, data map[string]string) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := afero.TempFile(s.fs, s.dir, "."+collection+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := s.fs.Rename(tmp.Name(), s.collectionPath(collection)); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	return nil
}

func (s *JsonFileStore) Get(collection, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return "", false, err
	}
	v, ok := coll[key]
	return v, ok, nil
}

func (s *JsonFileStore) Put(collection, key, value string) error {
	return s.PutBatch(collection, []Entry{{Key: key, Value: value}})
}

func (s *JsonFileStore) PutBatch(collection string, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return err
	}
	for _, e := range entries {
		coll[e.Key] = e.Value
	}
	return s.saveCollection(collection, coll)
}

func (s *JsonFileStore) Delete(collection, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return false, err
	}
	if _, ok := coll[key]; !ok {
		return false, nil
	}
	delete(coll, key)
	return true, s.saveCollection(collection, coll)
}

func (s *JsonFileStore) Contains(collection, key string) (bool, error) {
	_, ok, err := s.Get(collection, key)
	return ok, err
}

func (s *JsonFileStore) Count(collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return 0, err
	}
	return len(coll), nil
}

func (s *JsonFileStore) Clear(collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.fs.Remove(s.collectionPath(collection))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *JsonFileStore) Keys(collection string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(coll))
	for k := range coll {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *JsonFileStore) ListCollections() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		collection := strings.TrimSuffix(name, ".json")
		coll, err := s.loadCollection(collection)
		if err != nil {
			return nil, err
		}
		if len(coll) > 0 {
			names = append(names, collection)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Close() error {
	return nil
}
