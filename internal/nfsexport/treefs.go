// Package nfsexport projects a principal's access-filtered tree as a
// read-only billy filesystem and serves it over NFS. The export is a
// browsing surface: what a principal sees through the mount is exactly
// what the tree builder would hand them, nothing more.
package nfsexport

import (
	"context"
	"io"
	"os"
	"path"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/helper/chroot"

	"github.com/inkform/inkform/api"
	"github.com/inkform/inkform/internal/engine"
)

var errReadOnly = os.ErrPermission

// entry is one resolved path in the exported tree.
type entry struct {
	node     *api.NodeInfo
	isDir    bool
	children []string
}

// TreeFS adapts the engine's pinned forest to billy.Filesystem for one
// principal. The forest is re-fetched lazily once refresh elapses, so a
// long-lived mount tracks scope and hierarchy changes without remounting.
type TreeFS struct {
	eng       *engine.Engine
	principal api.Principal
	refresh   time.Duration
	mountTime time.Time

	mu      sync.Mutex
	index   map[string]*entry
	fetched time.Time
}

// NewTreeFS builds a filesystem view for the principal. refresh bounds how
// stale the projected tree may get; zero means refetch on every lookup.
func NewTreeFS(eng *engine.Engine, p api.Principal, refresh time.Duration) *TreeFS {
	return &TreeFS{
		eng:       eng,
		principal: p,
		refresh:   refresh,
		mountTime: time.Now(),
	}
}

// snapshot returns the current path index, refetching the forest when the
// cached one has expired.
func (fs *TreeFS) snapshot() (map[string]*entry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.index != nil && fs.refresh > 0 && time.Since(fs.fetched) < fs.refresh {
		return fs.index, nil
	}

	forest, err := fs.eng.BuildTree(context.Background(), "", fs.principal)
	if err != nil {
		return nil, err
	}
	index := map[string]*entry{
		"/": {isDir: true},
	}
	indexTree(index, "/", forest)
	fs.index = index
	fs.fetched = time.Now()
	return index, nil
}

// indexTree flattens a FolderTree into path-keyed entries under dir.
func indexTree(index map[string]*entry, dir string, t *api.FolderTree) {
	parent := index[dir]
	for _, sub := range t.Folders {
		p := path.Join(dir, sub.Folder.Name)
		index[p] = &entry{node: sub.Folder, isDir: true}
		parent.children = append(parent.children, p)
		indexTree(index, p, sub)
	}
	for _, doc := range t.Documents {
		p := path.Join(dir, doc.Name)
		index[p] = &entry{node: doc}
		parent.children = append(parent.children, p)
	}
}

func (fs *TreeFS) lookup(name string) (*entry, error) {
	index, err := fs.snapshot()
	if err != nil {
		return nil, err
	}
	e, ok := index[cleanPath(name)]
	if !ok {
		return nil, os.ErrNotExist
	}
	return e, nil
}

// --- billy.Basic ---

func (fs *TreeFS) Create(string) (billy.File, error) { return nil, errReadOnly }

func (fs *TreeFS) Open(filename string) (billy.File, error) {
	return fs.OpenFile(filename, os.O_RDONLY, 0)
}

func (fs *TreeFS) OpenFile(filename string, flag int, _ os.FileMode) (billy.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, errReadOnly
	}
	e, err := fs.lookup(filename)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	if e.isDir {
		return nil, &os.PathError{Op: "open", Path: filename, Err: os.ErrInvalid}
	}

	rc, err := fs.eng.OpenDocument(context.Background(), e.node.ID, fs.principal)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: filename, Err: err}
	}
	return &bytesFile{name: path.Base(filename), data: data}, nil
}

func (fs *TreeFS) Stat(filename string) (os.FileInfo, error) {
	return fs.Lstat(filename)
}

func (fs *TreeFS) Rename(string, string) error { return errReadOnly }
func (fs *TreeFS) Remove(string) error         { return errReadOnly }

func (fs *TreeFS) Join(elem ...string) string { return path.Join(elem...) }

// --- billy.TempFile ---

func (fs *TreeFS) TempFile(string, string) (billy.File, error) {
	return nil, billy.ErrNotSupported
}

// --- billy.Dir ---

func (fs *TreeFS) ReadDir(dir string) ([]os.FileInfo, error) {
	e, err := fs.lookup(dir)
	if err != nil {
		return nil, &os.PathError{Op: "readdir", Path: dir, Err: err}
	}
	if !e.isDir {
		return nil, &os.PathError{Op: "readdir", Path: dir, Err: os.ErrInvalid}
	}

	index, err := fs.snapshot()
	if err != nil {
		return nil, err
	}
	infos := make([]os.FileInfo, 0, len(e.children))
	for _, childPath := range e.children {
		child, ok := index[childPath]
		if !ok {
			continue
		}
		infos = append(infos, fs.fileInfo(path.Base(childPath), child))
	}
	return infos, nil
}

func (fs *TreeFS) MkdirAll(string, os.FileMode) error { return errReadOnly }

// --- billy.Symlink ---

func (fs *TreeFS) Lstat(filename string) (os.FileInfo, error) {
	filename = cleanPath(filename)
	if filename == "/" {
		return &staticFileInfo{name: "/", mode: os.ModeDir | 0o555, modTime: fs.mountTime}, nil
	}
	e, err := fs.lookup(filename)
	if err != nil {
		return nil, &os.PathError{Op: "lstat", Path: filename, Err: err}
	}
	return fs.fileInfo(path.Base(filename), e), nil
}

func (fs *TreeFS) Symlink(string, string) error { return billy.ErrNotSupported }

func (fs *TreeFS) Readlink(string) (string, error) { return "", billy.ErrNotSupported }

// --- billy.Chroot ---

func (fs *TreeFS) Chroot(p string) (billy.Filesystem, error) {
	return chroot.New(fs, p), nil
}

func (fs *TreeFS) Root() string { return "/" }

// --- billy.Capable ---

func (fs *TreeFS) Capabilities() billy.Capability {
	return billy.ReadCapability | billy.SeekCapability
}

func (fs *TreeFS) fileInfo(name string, e *entry) os.FileInfo {
	if e.isDir {
		modTime := fs.mountTime
		if e.node != nil && !e.node.ModTime.IsZero() {
			modTime = e.node.ModTime
		}
		return &staticFileInfo{name: name, mode: os.ModeDir | 0o555, modTime: modTime}
	}
	modTime := e.node.ModTime
	if modTime.IsZero() {
		modTime = fs.mountTime
	}
	return &staticFileInfo{name: name, size: e.node.Size, mode: 0o444, modTime: modTime}
}

func cleanPath(p string) string {
	p = path.Clean("/" + p)
	if p == "." {
		return "/"
	}
	return p
}

type staticFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
}

func (fi *staticFileInfo) Name() string       { return fi.name }
func (fi *staticFileInfo) Size() int64        { return fi.size }
func (fi *staticFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *staticFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *staticFileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *staticFileInfo) Sys() interface{}   { return nil }

var (
	_ billy.Filesystem = (*TreeFS)(nil)
	_ billy.Capable    = (*TreeFS)(nil)
)
