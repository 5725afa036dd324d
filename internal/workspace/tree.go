package workspace

import (
	"iter"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"mini-ide/internal/fileaccess"
)

// DirectoryEntry is one child of a listed directory.
type DirectoryEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
}

// ListingStatus is the request state of one directory listing.
type ListingStatus int

const (
	ListingIdle ListingStatus = iota
	ListingPending
	ListingReady
	ListingFailed
)

func (s ListingStatus) String() string {
	switch s {
	case ListingPending:
		return "pending"
	case ListingReady:
		return "ready"
	case ListingFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Listing is a read-only view of one directory's listing state. Entries is
// only meaningful when Status is ListingReady; Err only when ListingFailed.
type Listing struct {
	Status  ListingStatus
	Entries []DirectoryEntry
	Err     error
}

type listing struct {
	status    ListingStatus
	entries   []DirectoryEntry
	err       error
	requestID string
}

// fetchToken identifies one listing fetch so its completion can be checked
// for relevance.
type fetchToken struct {
	path      string
	epoch     uint64
	gen       uint64
	requestID string
}

// Node is one visible row of the explorer.
type Node struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Depth       int    `json:"depth"`
	IsDirectory bool   `json:"isDirectory"`
	Expanded    bool   `json:"expanded"`
	Loading     bool   `json:"loading"`
	FileType    string `json:"fileType"`
}

// Tree is the lazily populated mirror of a workspace directory tree. It
// holds cached listings keyed by absolute path and the expansion set.
//
// Tree is not safe for concurrent use; Controller serializes access.
type Tree struct {
	root     string
	epoch    uint64
	nextGen  uint64
	listings map[string]*listing
	gens     map[string]uint64
	expanded map[string]struct{}
}

// NewTree returns an empty tree for root. Root is expanded but unlisted.
func NewTree(root string) *Tree {
	t := &Tree{}
	t.Reset(root)
	return t
}

// Reset forgets every listing and expansion and rebinds the tree to root.
// Fetches begun before Reset are discarded when they complete.
func (t *Tree) Reset(root string) {
	t.epoch++
	t.root = root
	t.listings = make(map[string]*listing)
	t.gens = make(map[string]uint64)
	t.expanded = make(map[string]struct{})
	if root != "" {
		t.expanded[root] = struct{}{}
	}
}

// Root returns the workspace root path.
func (t *Tree) Root() string { return t.root }

// Expand adds path to the expansion set and reports whether a fetch is
// needed to show its children.
func (t *Tree) Expand(path string) bool {
	t.expanded[path] = struct{}{}
	return !t.HasListing(path)
}

// Collapse removes path from the expansion set. Its cached listing is kept
// so expanding again is free.
func (t *Tree) Collapse(path string) {
	delete(t.expanded, path)
}

// IsExpanded reports whether path is in the expansion set.
func (t *Tree) IsExpanded(path string) bool {
	_, ok := t.expanded[path]
	return ok
}

// HasListing reports whether path has a ready cached listing. An empty
// directory has one; a failed fetch does not.
func (t *Tree) HasListing(path string) bool {
	l, ok := t.listings[path]
	return ok && l.status == ListingReady
}

// Listing returns the listing state of path.
func (t *Tree) Listing(path string) Listing {
	l, ok := t.listings[path]
	if !ok {
		return Listing{Status: ListingIdle}
	}
	return Listing{Status: l.status, Entries: slices.Clone(l.entries), Err: l.err}
}

// Invalidate drops the cached listing of path without touching the
// expansion set. A fetch in flight for path is discarded on completion.
func (t *Tree) Invalidate(path string) {
	delete(t.listings, path)
	t.nextGen++
	t.gens[path] = t.nextGen
}

// ForgetListings drops every cached listing and keeps the expansion set.
func (t *Tree) ForgetListings() {
	for path := range t.listings {
		t.Invalidate(path)
	}
}

// ExpandedPaths returns the expansion set in sorted order.
func (t *Tree) ExpandedPaths() []string {
	return slices.Sorted(maps.Keys(t.expanded))
}

// CachedPaths returns every path with a ready listing in sorted order.
func (t *Tree) CachedPaths() []string {
	paths := make([]string, 0, len(t.listings))
	for path, l := range t.listings {
		if l.status == ListingReady {
			paths = append(paths, path)
		}
	}
	slices.Sort(paths)
	return paths
}

func (t *Tree) tracked(path string) bool {
	return path == t.root || t.IsExpanded(path)
}

func (t *Tree) beginFetch(path string, requestID string) fetchToken {
	l, ok := t.listings[path]
	if !ok {
		l = &listing{}
		t.listings[path] = l
	}
	l.status = ListingPending
	l.entries = nil
	l.err = nil
	l.requestID = requestID
	return fetchToken{path: path, epoch: t.epoch, gen: t.gens[path], requestID: requestID}
}

func (t *Tree) relevant(tok fetchToken) bool {
	if tok.epoch != t.epoch || tok.gen != t.gens[tok.path] {
		return false
	}
	l, ok := t.listings[tok.path]
	return ok && l.requestID == tok.requestID && t.tracked(tok.path)
}

// completeFetch stores a sorted listing if the fetch is still relevant.
func (t *Tree) completeFetch(tok fetchToken, entries []DirectoryEntry) bool {
	if !t.relevant(tok) {
		t.abandonFetch(tok)
		return false
	}
	sorted := slices.Clone(entries)
	sortEntries(sorted)
	l := t.listings[tok.path]
	l.status = ListingReady
	l.entries = sorted
	l.err = nil
	return true
}

// failFetch records a failed listing. The path leaves the expansion set,
// so expand ends either expanded with children or not expanded at all.
func (t *Tree) failFetch(tok fetchToken, err error) bool {
	if !t.relevant(tok) {
		t.abandonFetch(tok)
		return false
	}
	l := t.listings[tok.path]
	l.status = ListingFailed
	l.entries = nil
	l.err = err
	if tok.path != t.root {
		delete(t.expanded, tok.path)
	}
	return true
}

// abandonFetch clears the pending marker of a discarded fetch unless a
// newer request already owns the slot.
func (t *Tree) abandonFetch(tok fetchToken) {
	if tok.epoch != t.epoch {
		return
	}
	if l, ok := t.listings[tok.path]; ok && l.requestID == tok.requestID && l.status == ListingPending {
		delete(t.listings, tok.path)
	}
}

// movePrefix rewrites expansion entries under oldPath to newPath and drops
// cached listings under oldPath, whose entry paths are now stale.
func (t *Tree) movePrefix(oldPath string, newPath string) {
	var moved []string
	for path := range t.expanded {
		if fileaccess.PathWithinDir(path, oldPath) {
			moved = append(moved, path)
		}
	}
	for _, path := range moved {
		delete(t.expanded, path)
		t.expanded[rebase(path, oldPath, newPath)] = struct{}{}
	}
	t.dropListingsUnder(oldPath)
}

// dropPrefix forgets everything at or under path.
func (t *Tree) dropPrefix(path string) {
	for p := range t.expanded {
		if fileaccess.PathWithinDir(p, path) {
			delete(t.expanded, p)
		}
	}
	t.dropListingsUnder(path)
}

func (t *Tree) dropListingsUnder(path string) {
	for p := range t.listings {
		if fileaccess.PathWithinDir(p, path) {
			t.Invalidate(p)
		}
	}
}

// unlisted returns visible directories (root first, then in render order)
// that are expanded but have neither a ready listing nor a fetch running.
func (t *Tree) unlisted() []string {
	if t.root == "" {
		return nil
	}
	var out []string
	if !t.HasListing(t.root) {
		if l, ok := t.listings[t.root]; !ok || l.status != ListingPending {
			out = append(out, t.root)
		}
		return out
	}
	for n := range t.Nodes() {
		if !n.Loading {
			continue
		}
		if l, ok := t.listings[n.Path]; ok && l.status == ListingPending {
			continue
		}
		out = append(out, n.Path)
	}
	return out
}

// Nodes yields the visible rows depth-first in pre-order. The root itself
// is not a row; its children are depth 0. A directory's children appear
// only when it is expanded and has a ready listing. Collapsing the root
// hides its whole subtree.
func (t *Tree) Nodes() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		if t.root == "" || !t.IsExpanded(t.root) {
			return
		}
		t.walk(t.root, 0, yield)
	}
}

func (t *Tree) walk(dir string, depth int, yield func(Node) bool) bool {
	l, ok := t.listings[dir]
	if !ok || l.status != ListingReady {
		return true
	}
	for _, e := range l.entries {
		n := Node{
			Name:        e.Name,
			Path:        e.Path,
			Depth:       depth,
			IsDirectory: e.IsDirectory,
			FileType:    FileTypeFolder,
		}
		if e.IsDirectory {
			n.Expanded = t.IsExpanded(e.Path)
			n.Loading = n.Expanded && !t.HasListing(e.Path)
		} else {
			n.FileType = FileType(e.Name)
		}
		if !yield(n) {
			return false
		}
		if n.Expanded && !t.walk(e.Path, depth+1, yield) {
			return false
		}
	}
	return true
}

// RenderSequence collects Nodes into a slice.
func (t *Tree) RenderSequence() []Node {
	return slices.Collect(t.Nodes())
}

// sortEntries orders directories before files, then names by locale
// collation with a byte-order tie-break so equal-collating names still
// sort deterministically. collate.Collator is not safe for concurrent use,
// so each call builds its own.
func sortEntries(entries []DirectoryEntry) {
	col := collate.New(language.Und)
	slices.SortStableFunc(entries, func(a, b DirectoryEntry) int {
		if a.IsDirectory != b.IsDirectory {
			if a.IsDirectory {
				return -1
			}
			return 1
		}
		if c := col.CompareString(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// rebase moves path from under oldDir to under newDir.
func rebase(path string, oldDir string, newDir string) string {
	if path == oldDir {
		return newDir
	}
	rel, err := filepath.Rel(oldDir, path)
	if err != nil {
		return path
	}
	return filepath.Join(newDir, rel)
}
