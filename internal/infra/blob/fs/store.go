package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"printvault/internal/blob/core"
)

// Store keeps blobs as plain files under a root directory. Keys map one to
// one onto relative paths, so the media tree stays browsable with ordinary
// tools. Writes land in a temp file first and are renamed into place, which
// keeps readers from ever seeing a partial object. Content type is derived
// from the file extension on read.
type Store struct {
	root string
}

// New returns a filesystem store rooted at dir, creating the tree if needed.
// An empty dir falls back to ./media next to the process.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "./media"
	}
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the directory holding the media tree.
func (s *Store) Root() string { return s.root }

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sanitizeKey rejects keys that could resolve outside the media root.
func sanitizeKey(key string) (string, error) {
	switch {
	case strings.TrimSpace(key) == "":
		return "", errors.New("blob key is empty")
	case strings.HasPrefix(key, "/"):
		return "", fmt.Errorf("blob key %q is absolute", key)
	case strings.Contains(key, ".."):
		return "", fmt.Errorf("blob key %q escapes the media root", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("blob key %q escapes the media root", key)
	}
	return clean, nil
}

func (s *Store) objectPath(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return core.Info{}, fmt.Errorf("blob %s already exists", key)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return core.Info{}, err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return core.Info{}, err
	}
	defer os.Remove(tmp.Name())

	digest := sha256.New()
	size, err := io.Copy(tmp, io.TeeReader(r, digest))
	if err != nil {
		tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return core.Info{}, err
	}

	info, err := s.statInfo(key, path)
	if err != nil {
		return core.Info{}, err
	}
	info.Size = size
	info.ETag = hex.EncodeToString(digest.Sum(nil))
	if opts.ContentType != "" {
		info.ContentType = opts.ContentType
	}
	return info, nil
}

func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return core.Info{}, nil, err
	}
	info, err := s.statInfo(key, path)
	if err != nil {
		f.Close()
		return core.Info{}, nil, err
	}
	return info, f, nil
}

func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return core.Info{}, err
	}
	return s.statInfo(key, path)
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	s.pruneEmptyDirs(filepath.Dir(path))
	return true, nil
}

// pruneEmptyDirs removes now-empty directories between dir and the media
// root, so deleting the last object of an entity leaves no husk behind.
func (s *Store) pruneEmptyDirs(dir string) {
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	walk := func(path string, d fs.DirEntry, walkErr error) error {
		switch {
		case walkErr != nil:
			return walkErr
		case d.IsDir(), strings.HasPrefix(d.Name(), ".tmp-"):
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.statInfo(key, path)
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	}
	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b core.Info) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, http.MethodGet) {
		return "", core.ErrUnsupported
	}
	if _, err := sanitizeKey(key); err != nil {
		return "", err
	}
	return s.localURL(key), nil
}

func (s *Store) statInfo(key, path string) (core.Info, error) {
	st, err := os.Stat(path)
	if err != nil {
		return core.Info{}, err
	}
	return core.Info{
		Key:          key,
		Size:         st.Size(),
		ContentType:  mime.TypeByExtension(filepath.Ext(path)),
		LastModified: st.ModTime().UTC(),
		URL:          s.localURL(key),
	}, nil
}

// localURL is a stable pseudo URL for dev setups with no public blob host.
func (s *Store) localURL(key string) string {
	u := url.URL{Scheme: "http", Host: "local.blob", Path: "/" + key}
	return u.String()
}
