// Package storage is the media volume audio files are played from.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
)

var (
	ErrNotMounted = errors.New("volume not mounted")
	ErrMounted    = errors.New("volume already mounted")
)

type Entry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Dir  bool   `json:"dir"`
}

func (e Entry) String() string {
	if e.Dir {
		return fmt.Sprintf("[DIR ] %s", e.Name)
	}
	return fmt.Sprintf("[FILE] %s (size = %d)", e.Name, e.Size)
}

// Volume is a directory tree mounted read-only. Names are slash separated and relative to
// the mount point.
type Volume struct {
	mu   sync.RWMutex
	root string
	fsys fs.FS
}

func NewVolume() *Volume {
	return &Volume{}
}

func (v *Volume) Mount(root string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.fsys != nil {
		return fmt.Errorf("%w at %s", ErrMounted, v.root)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("mounting %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mounting %s: not a directory", root)
	}
	v.root = root
	v.fsys = os.DirFS(root)
	return nil
}

// MountFS mounts an existing file system, e.g. an embedded one.
func (v *Volume) MountFS(name string, fsys fs.FS) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.fsys != nil {
		return fmt.Errorf("%w at %s", ErrMounted, v.root)
	}
	v.root = name
	v.fsys = fsys
	return nil
}

func (v *Volume) Unmount() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.fsys == nil {
		return ErrNotMounted
	}
	v.root = ""
	v.fsys = nil
	return nil
}

func (v *Volume) Mounted() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.fsys != nil
}

func (v *Volume) Root() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.root
}

func (v *Volume) get() (fs.FS, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.fsys == nil {
		return nil, ErrNotMounted
	}
	return v.fsys, nil
}

func clean(name string) (string, error) {
	name = path.Clean("/" + strings.TrimSpace(name))[1:]
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", fmt.Errorf("invalid path %q", name)
	}
	return name, nil
}

// List returns the entries of dir sorted by name, directories first.
func (v *Volume) List(dir string) ([]Entry, error) {
	fsys, err := v.get()
	if err != nil {
		return nil, err
	}
	dir, err = clean(dir)
	if err != nil {
		return nil, err
	}

	dirents, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		e := Entry{Name: d.Name(), Dir: d.IsDir()}
		if !e.Dir {
			info, err := d.Info()
			if err != nil {
				return nil, err
			}
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Open returns the named file. It is seekable when the backing file system allows it.
func (v *Volume) Open(name string) (io.ReadCloser, error) {
	fsys, err := v.get()
	if err != nil {
		return nil, err
	}
	name, err = clean(name)
	if err != nil {
		return nil, err
	}
	f, err := fsys.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", name)
	}
	return f, nil
}
