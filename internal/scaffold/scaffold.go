// Package scaffold writes the sample workspace used to try the explorer and
// editor without an existing project.
package scaffold

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// DirName is the directory created under the system temp directory by
// DefaultDir.
const DirName = "mini-ide-sample-workspace"

// File is one sample file, with a slash-separated path relative to the
// workspace root.
type File struct {
	Path    string
	Content string
}

// Files is the sample tree in creation order.
var Files = []File{
	{
		Path:    "test.txt",
		Content: "This is a test file created by Mini IDE\n\nYou can edit this file to test the editor functionality.",
	},
	{
		Path: "script.js",
		Content: "console.log(\"Hello from Mini IDE!\");\n\n// This is a JavaScript test file\n" +
			"function greet(name) {\n    return `Hello, ${name}!`;\n}\n\ngreet(\"World\");",
	},
	{
		Path: "README.md",
		Content: "# Mini IDE Test Workspace\n\nThis is a test workspace created by Mini IDE.\n\n" +
			"## Features to test:\n\n- [ ] File creation\n- [ ] Folder creation\n- [ ] File editing\n" +
			"- [ ] File deletion\n- [ ] Folder expansion",
	},
	{
		Path:    "folder1/nested.txt",
		Content: "This is a nested file inside folder1",
	},
	{
		Path:    "folder1/component.js",
		Content: "export default function Component() {\n    return \"Hello from component!\";\n}",
	},
	{
		Path:    "folder1/subfolder/deep.txt",
		Content: "This is a deeply nested file",
	},
}

// DefaultDir returns the sample workspace location under the temp directory.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), DirName)
}

// Create replaces dir with a fresh sample tree and returns its absolute path.
func Create(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errors.New("scaffold: directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("scaffold: resolve %s: %w", dir, err)
	}
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return "", fmt.Errorf("scaffold: refusing to replace filesystem root %s", abs)
	}
	if err := os.RemoveAll(abs); err != nil {
		return "", fmt.Errorf("scaffold: remove previous sample: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("scaffold: create %s: %w", abs, err)
	}
	if err := Write(osfs.New(abs, osfs.WithBoundOS())); err != nil {
		return "", err
	}
	slog.Info("[scaffold] sample workspace created", "path", abs)
	return abs, nil
}

// Write writes the sample tree into fs, creating parent directories.
func Write(fs billy.Filesystem) error {
	for _, f := range Files {
		dir := path.Dir(f.Path)
		if dir != "." {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("scaffold: create %s: %w", dir, err)
			}
		}
		if err := util.WriteFile(fs, f.Path, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("scaffold: write %s: %w", f.Path, err)
		}
	}
	return nil
}
