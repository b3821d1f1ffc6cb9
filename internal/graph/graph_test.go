package graph

import (
	"errors"
	"testing"

	"github.com/inkform/inkform/api"
)

func folder(id, parent string) *api.NodeInfo {
	return &api.NodeInfo{ID: id, Kind: api.KindFolder, ParentID: parent}
}

func testGraph() *Graph {
	return New([]*api.NodeInfo{
		folder("/", ""),
		folder("/a", "/"),
		folder("/a/b", "/a"),
		folder("/x", "/"),
	})
}

func TestPathOfFolder(t *testing.T) {
	g := testGraph()
	path, err := g.PathOf("/a/b", "")
	if err != nil {
		t.Fatalf("PathOf returned error: %v", err)
	}
	want := []string{"/", "/a", "/a/b"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, path[i], want[i])
		}
	}
}

func TestPathOfDocumentUsesKnownParent(t *testing.T) {
	g := testGraph()
	path, err := g.PathOf("/a/b/doc.docx", "/a/b")
	if err != nil {
		t.Fatalf("PathOf returned error: %v", err)
	}
	want := []string{"/", "/a", "/a/b", "/a/b/doc.docx"}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, path[i], want[i])
		}
	}
}

func TestPathOfOrphanIsSingleton(t *testing.T) {
	g := testGraph()
	path, err := g.PathOf("loose-doc", "")
	if err != nil {
		t.Fatalf("PathOf returned error: %v", err)
	}
	if len(path) != 1 || path[0] != "loose-doc" {
		t.Errorf("path = %v, want [loose-doc]", path)
	}
}

func TestPathOfCyclicParentsAborts(t *testing.T) {
	g := New([]*api.NodeInfo{
		folder("/a", "/b"),
		folder("/b", "/a"),
	})
	_, err := g.PathOf("/a", "")
	if !errors.Is(err, ErrUnresolvableLocation) {
		t.Fatalf("err = %v, want ErrUnresolvableLocation", err)
	}
}

func TestChildrenOf(t *testing.T) {
	g := testGraph()
	kids := g.ChildrenOf("/")
	if len(kids) != 2 {
		t.Fatalf("children of / = %v, want 2 entries", kids)
	}
}

func TestInternIsStable(t *testing.T) {
	g := testGraph()
	a := g.Intern("/a")
	if g.Intern("/a") != a {
		t.Error("interning the same id twice must return the same value")
	}
	if g.Intern("/x") == a {
		t.Error("distinct ids must intern to distinct values")
	}
}
