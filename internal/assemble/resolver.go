package assemble

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"sync"

	kerrors "github.com/conneroisu/koisite/internal/errors"
	"github.com/spf13/afero"
)

// Resolver returns the fragment content for a snippet name.
//
// Implementations report an absent fragment with an error matching
// kerrors.ErrMissingFragment and any other backing-store failure with one
// matching kerrors.ErrIOFailure.
type Resolver interface {
	Resolve(name string) ([]byte, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(name string) ([]byte, error)

// Resolve calls f(name).
func (f ResolverFunc) Resolve(name string) ([]byte, error) {
	return f(name)
}

// MapResolver resolves names from an in-memory map.
type MapResolver map[string]string

// Resolve implements Resolver.
func (m MapResolver) Resolve(name string) ([]byte, error) {
	content, ok := m[name]
	if !ok {
		return nil, kerrors.NewMissingFragment(name, nil)
	}
	return []byte(content), nil
}

// DirResolver reads fragments from Dir/<name><Ext> on Fs.
type DirResolver struct {
	Fs  afero.Fs
	Dir string
	Ext string
}

// NewDirResolver returns a resolver over the OS filesystem.
func NewDirResolver(dir, ext string) *DirResolver {
	return &DirResolver{Fs: afero.NewOsFs(), Dir: dir, Ext: ext}
}

// Path returns the fragment file a name maps to. Names that would leave Dir
// are rejected as malformed markers.
func (r *DirResolver) Path(name string) (string, error) {
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", kerrors.NewMalformedMarker(0, "snippet name escapes the fragment directory").
			WithContext("name", name)
	}
	return filepath.Join(r.Dir, filepath.FromSlash(clean)+r.Ext), nil
}

// Resolve implements Resolver.
func (r *DirResolver) Resolve(name string) ([]byte, error) {
	p, err := r.Path(name)
	if err != nil {
		return nil, err
	}

	fsys := r.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	content, err := afero.ReadFile(fsys, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, kerrors.NewMissingFragment(name, err).WithPath(p)
		}
		return nil, kerrors.NewIOFailure(p, "read fragment", err)
	}
	return content, nil
}

// CachingResolver memoizes successful lookups of the wrapped resolver, so a
// name repeated within one pass is read once. Failures are not cached.
type CachingResolver struct {
	next  Resolver
	mu    sync.Mutex
	cache map[string][]byte
}

// NewCachingResolver wraps next.
func NewCachingResolver(next Resolver) *CachingResolver {
	return &CachingResolver{next: next, cache: make(map[string][]byte)}
}

// Resolve implements Resolver.
func (c *CachingResolver) Resolve(name string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if content, ok := c.cache[name]; ok {
		return content, nil
	}
	content, err := c.next.Resolve(name)
	if err != nil {
		return nil, err
	}
	c.cache[name] = content
	return content, nil
}
