package provider

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	"github.com/gravitational/trace"

	"github.com/inkform/inkform/api"
)

// templateExtensions are the document formats the fill engine understands.
// Anything else in the hierarchy is invisible to the engine, matching how
// the external store filters listings to compatible mime types.
var templateExtensions = map[string]bool{
	".docx": true,
	".odt":  true,
	".doc":  true,
	".txt":  true,
	".md":   true,
	".tmpl": true,
}

// RootID is the node id of the hierarchy root.
const RootID = "/"

// BillyFS adapts a billy.Filesystem to the Provider contract. Node ids are
// clean absolute paths within the filesystem; the single parent of a node
// is its containing directory.
type BillyFS struct {
	fs billy.Filesystem
}

// NewBillyFS wraps a billy filesystem as a Provider.
func NewBillyFS(fs billy.Filesystem) *BillyFS {
	return &BillyFS{fs: fs}
}

func cleanID(id string) string {
	id = path.Clean("/" + strings.TrimPrefix(id, "/"))
	return id
}

// IsTemplateName reports whether a file name has a fillable extension.
func IsTemplateName(name string) bool {
	return templateExtensions[strings.ToLower(path.Ext(name))]
}

// rootInfo synthesizes the root folder node. Some billy backends cannot
// stat "/" before anything is written under it.
func rootInfo() *api.NodeInfo {
	return &api.NodeInfo{ID: RootID, Name: RootID, Kind: api.KindFolder}
}

func (b *BillyFS) nodeInfo(id string, fi os.FileInfo) *api.NodeInfo {
	info := &api.NodeInfo{
		ID:      id,
		Name:    fi.Name(),
		ModTime: fi.ModTime(),
	}
	if id == RootID {
		info.Name = RootID
	} else {
		info.ParentID = path.Dir(id)
	}
	if fi.IsDir() {
		info.Kind = api.KindFolder
	} else {
		info.Kind = api.KindDocument
		info.Size = fi.Size()
	}
	return info
}

// ListFolders walks the filesystem and returns every directory, the root
// included.
func (b *BillyFS) ListFolders(ctx context.Context) ([]*api.NodeInfo, error) {
	var out []*api.NodeInfo
	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return trace.Wrap(err)
		}
		if dir == RootID {
			out = append(out, rootInfo())
		} else {
			fi, err := b.fs.Stat(dir)
			if err != nil {
				return trace.Wrap(err, "stat %s", dir)
			}
			out = append(out, b.nodeInfo(dir, fi))
		}
		entries, err := b.fs.ReadDir(dir)
		if err != nil {
			return trace.Wrap(err, "read dir %s", dir)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				if err := walk(path.Join(dir, entry.Name())); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(RootID); err != nil {
		return nil, err
	}
	return out, nil
}

// GetNode stats one node. Unknown paths and non-template files both report
// trace.NotFound: the engine must not see what the fill engine cannot use.
func (b *BillyFS) GetNode(ctx context.Context, id string) (*api.NodeInfo, error) {
	id = cleanID(id)
	if id == RootID {
		return rootInfo(), nil
	}
	fi, err := b.fs.Stat(id)
	if err != nil {
		return nil, trace.NotFound("node %q not found", id)
	}
	if !fi.IsDir() && !IsTemplateName(fi.Name()) {
		return nil, trace.NotFound("node %q not found", id)
	}
	return b.nodeInfo(id, fi), nil
}

// ListChildren lists the direct subfolders and template documents of a
// folder in name order.
func (b *BillyFS) ListChildren(ctx context.Context, id string) ([]*api.NodeInfo, error) {
	id = cleanID(id)
	if id != RootID {
		fi, err := b.fs.Stat(id)
		if err != nil {
			return nil, trace.NotFound("node %q not found", id)
		}
		if !fi.IsDir() {
			return nil, trace.BadParameter("node %q is not a folder", id)
		}
	}
	entries, err := b.fs.ReadDir(id)
	if err != nil {
		return nil, trace.Wrap(err, "read dir %s", id)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]*api.NodeInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && !IsTemplateName(entry.Name()) {
			continue
		}
		out = append(out, b.nodeInfo(path.Join(id, entry.Name()), entry))
	}
	return out, nil
}

// Open streams the content of a document node.
func (b *BillyFS) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	id = cleanID(id)
	node, err := b.GetNode(ctx, id)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	if node.IsFolder() {
		return nil, trace.BadParameter("node %q is a folder", id)
	}
	f, err := b.fs.Open(id)
	if err != nil {
		return nil, trace.Wrap(err, "open %s", id)
	}
	return f, nil
}
