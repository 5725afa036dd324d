package workspace

import (
	"path/filepath"
	"strings"
)

// FileTypeFolder is the type reported for directory nodes.
const FileTypeFolder = "folder"

var fileTypeByExt = map[string]string{
	"js":       "js",
	"ts":       "ts",
	"html":     "html",
	"htm":      "html",
	"css":      "css",
	"scss":     "css",
	"sass":     "css",
	"md":       "md",
	"markdown": "md",
	"json":     "json",
	"txt":      "txt",
	"py":       "py",
	"java":     "java",
	"cpp":      "cpp",
	"c":        "c",
	"h":        "c",
}

// FileType classifies a file name by extension for icon styling.
// Unknown or missing extensions classify as "file".
func FileType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if t, ok := fileTypeByExt[ext]; ok {
		return t
	}
	return "file"
}
