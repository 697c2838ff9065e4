package detector

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ============================================================
// MODEL STORE
// ============================================================

// ProgressFunc returns a writer that observes a download of size bytes
// (-1 when unknown). It may return nil.
type ProgressFunc func(name string, size int64) io.Writer

// ModelStore resolves model file names against a location that is either a
// local directory or an http(s) base URL. Remote files are fetched once into
// the cache directory.
type ModelStore struct {
	location string
	cacheDir string
	client   *http.Client
	progress ProgressFunc
}

func NewModelStore(location, cacheDir string) *ModelStore {
	return &ModelStore{
		location: location,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 5 * time.Minute},
	}
}

func (s *ModelStore) WithProgress(fn ProgressFunc) *ModelStore {
	s.progress = fn
	return s
}

func (s *ModelStore) WithHTTPClient(c *http.Client) *ModelStore {
	if c != nil {
		s.client = c
	}
	return s
}

func (s *ModelStore) Remote() bool {
	return isRemote(s.location)
}

// Path returns a local path for name, downloading it first when the store
// is remote and the file is not cached yet.
func (s *ModelStore) Path(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty model name")
	}
	if filepath.IsAbs(name) {
		return checkFile(name)
	}
	if !s.Remote() {
		return checkFile(filepath.Join(s.location, name))
	}

	dir, err := s.resolveCacheDir()
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, filepath.Base(name))
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	src, err := joinURL(s.location, name)
	if err != nil {
		return "", err
	}
	if err := s.download(ctx, src, local); err != nil {
		return "", err
	}
	return local, nil
}

func (s *ModelStore) resolveCacheDir() (string, error) {
	dir := s.cacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "selfie-capture-kiosk", "models")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model cache: %w", err)
	}
	return dir, nil
}

func (s *ModelStore) download(ctx context.Context, src, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	log.Printf("⬇️  Downloading model %s", src)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", src, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: status %d", src, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".model-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if s.progress != nil {
		if pw := s.progress(filepath.Base(dst), resp.ContentLength); pw != nil {
			w = io.MultiWriter(tmp, pw)
		}
	}

	n, err := io.Copy(w, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", src, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("failed to save %s: %w", src, err)
	}

	log.Printf("✅ Model cached: %s (%.1fKB)", dst, float64(n)/1024.0)
	return nil
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

func joinURL(base, name string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid model url %q: %w", base, err)
	}
	u.Path = path.Join(u.Path, name)
	return u.String(), nil
}

func checkFile(p string) (string, error) {
	info, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("model file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("model file %s is a directory", p)
	}
	return p, nil
}
