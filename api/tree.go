package api

// FolderTree is the presentation tree assembled by the tree builder.
// A single-folder build sets Folder to the root being viewed. The pinned
// forest flattens to one envelope with a nil Folder: each accessible pinned
// folder becomes an entry in Folders, pinned documents land in Documents.
// Pinned roots are never nested under each other in output.
type FolderTree struct {
	// Folder is the node this subtree hangs off, nil for the flat
	// pinned envelope.
	Folder *NodeInfo `json:"folder,omitempty"`
	// Folders holds the accessible child subtrees.
	Folders []*FolderTree `json:"folders"`
	// Documents holds the accessible documents directly inside Folder.
	Documents []*NodeInfo `json:"documents"`
}

// NewFolderTree builds an empty tree node for the given folder.
func NewFolderTree(folder *NodeInfo) *FolderTree {
	return &FolderTree{
		Folder:    folder,
		Folders:   []*FolderTree{},
		Documents: []*NodeInfo{},
	}
}

// Empty reports whether the tree carries no accessible content below its
// own root.
func (t *FolderTree) Empty() bool {
	return len(t.Folders) == 0 && len(t.Documents) == 0
}

// ResolvedSource records which tier of the precedence chain produced a
// resolved variable value.
type ResolvedSource string

const (
	// SourceConstant means the effective variable's constant value won.
	SourceConstant ResolvedSource = "constant"
	// SourceCaller means the caller-supplied value validated and won.
	SourceCaller ResolvedSource = "caller"
	// SourceSaved means the principal's saved value validated and won.
	SourceSaved ResolvedSource = "saved"
	// SourcePassthrough means no variable is configured for the name and
	// the caller value was accepted verbatim.
	SourcePassthrough ResolvedSource = "passthrough"
)

// ResolvedVariable is one entry of a render context: the final value for a
// template name plus where it came from.
type ResolvedVariable struct {
	Name   string         `json:"name"`
	Value  any            `json:"value"`
	Source ResolvedSource `json:"source"`
}
