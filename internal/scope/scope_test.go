package scope

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOutside(t *testing.T) {
	cases := []struct {
		name string
		root string
		ref  string
		want bool
	}{
		{"inside", "/home/u/proj", "/home/u/proj/src/a.js", false},
		{"project root itself", "/home/u/proj", "/home/u/proj", false},
		{"absolute outside", "/home/u/proj", "/etc/passwd", true},
		{"dotdot traversal", "/home/u/proj", "/home/u/proj/../other/a.js", true},
		{"relative inside", "/home/u/proj", "src/a.js", false},
		{"relative traversal", "/home/u/proj", "../other/a.js", true},
		{"sibling prefix", "/home/u/proj", "/home/u/project2/a.js", true},
		{"empty ref", "/home/u/proj", "", false},
		{"empty root", "", "/etc/passwd", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Outside(tc.root, tc.ref); got != tc.want {
				t.Errorf("Outside(%q, %q) = %v, want %v", tc.root, tc.ref, got, tc.want)
			}
		})
	}
}

func TestOutsideResolvesSymlinks(t *testing.T) {
	base := t.TempDir()
	project := filepath.Join(base, "proj")
	elsewhere := filepath.Join(base, "elsewhere")
	for _, dir := range []string{project, elsewhere} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			t.Fatal(err)
		}
	}
	secret := filepath.Join(elsewhere, "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}

	// A symlink inside the project pointing out of it must not mask the
	// escape.
	link := filepath.Join(project, "innocent.txt")
	if err := os.Symlink(secret, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if !Outside(project, link) {
		t.Error("symlink escaping the project root was not flagged")
	}

	// A symlinked project root must still contain its own files.
	rootLink := filepath.Join(base, "proj-link")
	if err := os.Symlink(project, rootLink); err != nil {
		t.Fatal(err)
	}
	inside := filepath.Join(project, "main.go")
	if err := os.WriteFile(inside, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if Outside(rootLink, filepath.Join(rootLink, "main.go")) {
		t.Error("file inside symlinked project root flagged as outside")
	}
}

func TestOutsideNonexistentPath(t *testing.T) {
	base := t.TempDir()
	project := filepath.Join(base, "proj")
	if err := os.MkdirAll(project, 0750); err != nil {
		t.Fatal(err)
	}

	// A file about to be written does not exist yet; it still belongs
	// to the project.
	if Outside(project, filepath.Join(project, "new", "deep", "file.go")) {
		t.Error("nonexistent path under the project flagged as outside")
	}
	if !Outside(project, filepath.Join(base, "other", "file.go")) {
		t.Error("nonexistent path outside the project not flagged")
	}
}

func TestRefPath(t *testing.T) {
	cases := []struct {
		name  string
		input map[string]any
		want  string
	}{
		{"file_path", map[string]any{"file_path": "/a/b.go"}, "/a/b.go"},
		{"path", map[string]any{"path": "/a"}, "/a"},
		{"notebook_path", map[string]any{"notebook_path": "/n.ipynb"}, "/n.ipynb"},
		{"file_path wins", map[string]any{"file_path": "/f", "path": "/p"}, "/f"},
		{"shell command has no ref", map[string]any{"command": "rm -rf /"}, ""},
		{"non-string ignored", map[string]any{"file_path": 42}, ""},
		{"nil input", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RefPath(tc.input); got != tc.want {
				t.Errorf("RefPath(%v) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
