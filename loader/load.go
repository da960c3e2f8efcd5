package loader

import (
	"bytes"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"

	"github.com/evanphx/mosk/exec"
	"github.com/evanphx/mosk/log"
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize is how many assembled programs a command line loader
// keeps.
const DefaultCacheSize = 100

// Loader turns program source into Programs. With a cache, sources with the
// same contents share one Program. Programs are never mutated after
// assembly so sharing is safe.
type Loader struct {
	L hclog.Logger

	// keyed by contentKey; ARCCache does its own locking
	cache *lru.ARCCache
}

// NewLoader returns a Loader that remembers up to cacheSize programs by
// content. A cacheSize of zero turns the cache off.
func NewLoader(cacheSize int) *Loader {
	l := &Loader{L: log.L.Named("loader")}

	if cacheSize > 0 {
		// NewARC only fails for a non-positive size.
		l.cache, _ = lru.NewARC(cacheSize)
	}

	return l
}

// Cached reports how many programs are in the cache.
func (l *Loader) Cached() int {
	if l.cache == nil {
		return 0
	}

	return l.cache.Len()
}

func (l *Loader) LoadFile(path string) (*exec.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	return l.Load(filepath.Base(path), f)
}

func (l *Loader) LoadString(name, src string) (*exec.Program, error) {
	return l.Load(name, bytes.NewReader([]byte(src)))
}

func (l *Loader) Load(name string, r io.ReadSeeker) (*exec.Program, error) {
	if l.cache == nil {
		return l.assemble(name, r)
	}

	key, err := contentKey(r)
	if err != nil {
		return nil, err
	}

	if v, ok := l.cache.Get(key); ok {
		l.L.Trace("using cached program", "name", name, "key", key)
		return v.(*exec.Program), nil
	}

	prog, err := l.assemble(name, r)
	if err != nil {
		return nil, err
	}

	l.cache.Add(key, prog)

	return prog, nil
}

func (l *Loader) assemble(name string, r io.Reader) (*exec.Program, error) {
	prog, err := Assemble(name, r)
	if err != nil {
		return nil, err
	}

	l.L.Debug("assembled program", "name", name, "instructions", len(prog.Text))

	return prog, nil
}

// contentKey hashes the rest of r and rewinds it.
func contentKey(r io.ReadSeeker) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}
