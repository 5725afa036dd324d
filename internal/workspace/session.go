package workspace

import (
	"path/filepath"
	"slices"

	"mini-ide/internal/fileaccess"
)

const dirtyMarker = "● "

type document struct {
	path        string
	currentText string
	savedText   string
}

func (d *document) dirty() bool { return d.currentText != d.savedText }

// DocumentView is a read-only copy of one open document.
type DocumentView struct {
	Path      string `json:"path"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	SavedText string `json:"savedText"`
	Dirty     bool   `json:"dirty"`
	FileType  string `json:"fileType"`
}

// Tab is one entry of the tab bar.
type Tab struct {
	Path     string `json:"path"`
	Title    string `json:"title"`
	Label    string `json:"label"`
	Dirty    bool   `json:"dirty"`
	Active   bool   `json:"active"`
	FileType string `json:"fileType"`
}

// Session is the ordered set of open documents and the active one.
// Insertion order decides tab order and which document becomes active when
// the active one closes.
//
// Session is not safe for concurrent use; Controller serializes access.
type Session struct {
	order  []string
	docs   map[string]*document
	active string
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{docs: make(map[string]*document)}
}

// Len returns the number of open documents.
func (s *Session) Len() int { return len(s.order) }

// Has reports whether path is open.
func (s *Session) Has(path string) bool {
	_, ok := s.docs[path]
	return ok
}

// Active returns the active document path, or "" when none is open.
func (s *Session) Active() string { return s.active }

// Paths returns open document paths in insertion order.
func (s *Session) Paths() []string { return slices.Clone(s.order) }

// Document returns a copy of the document at path.
func (s *Session) Document(path string) (DocumentView, bool) {
	d, ok := s.docs[path]
	if !ok {
		return DocumentView{}, false
	}
	return viewOf(d), true
}

// Tabs returns the tab bar projection in insertion order.
func (s *Session) Tabs() []Tab {
	tabs := make([]Tab, 0, len(s.order))
	for _, path := range s.order {
		d := s.docs[path]
		title := filepath.Base(path)
		label := title
		if d.dirty() {
			label = dirtyMarker + title
		}
		tabs = append(tabs, Tab{
			Path:     path,
			Title:    title,
			Label:    label,
			Dirty:    d.dirty(),
			Active:   path == s.active,
			FileType: FileType(title),
		})
	}
	return tabs
}

func viewOf(d *document) DocumentView {
	title := filepath.Base(d.path)
	return DocumentView{
		Path:      d.path,
		Title:     title,
		Text:      d.currentText,
		SavedText: d.savedText,
		Dirty:     d.dirty(),
		FileType:  FileType(title),
	}
}

// add opens a clean document and makes it active.
func (s *Session) add(path string, content string) *document {
	d := &document{path: path, currentText: content, savedText: content}
	s.docs[path] = d
	s.order = append(s.order, path)
	s.active = path
	return d
}

func (s *Session) get(path string) *document { return s.docs[path] }

func (s *Session) activate(path string) bool {
	if _, ok := s.docs[path]; !ok {
		return false
	}
	s.active = path
	return true
}

// remove closes path. If it was active, the first remaining document by
// insertion order becomes active.
func (s *Session) remove(path string) bool {
	if _, ok := s.docs[path]; !ok {
		return false
	}
	delete(s.docs, path)
	s.order = slices.DeleteFunc(s.order, func(p string) bool { return p == path })
	if s.active == path {
		s.active = ""
		if len(s.order) > 0 {
			s.active = s.order[0]
		}
	}
	return true
}

// removeUnder closes every document at or under dir.
func (s *Session) removeUnder(dir string) []string {
	var closed []string
	for _, path := range slices.Clone(s.order) {
		if fileaccess.PathWithinDir(path, dir) {
			s.remove(path)
			closed = append(closed, path)
		}
	}
	return closed
}

// rekeyUnder moves every document at or under oldPath to the matching
// path under newPath, keeping content, tab position and activation.
func (s *Session) rekeyUnder(oldPath string, newPath string) []string {
	var moved []string
	for i, path := range s.order {
		if !fileaccess.PathWithinDir(path, oldPath) {
			continue
		}
		target := rebase(path, oldPath, newPath)
		d := s.docs[path]
		delete(s.docs, path)
		d.path = target
		s.docs[target] = d
		s.order[i] = target
		if s.active == path {
			s.active = target
		}
		moved = append(moved, target)
	}
	return moved
}

func (s *Session) reset() {
	s.order = nil
	s.docs = make(map[string]*document)
	s.active = ""
}
