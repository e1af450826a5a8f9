package filesync

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/remotesync/internal/protocol/packet"
)

// Root is a directory tree that served paths are resolved against.
type Root struct {
	dir string
}

// NewRoot resolves dir to an absolute directory.
func NewRoot(dir string) (Root, error) {
	resolved := strings.TrimSpace(dir)
	if resolved == "" {
		resolved = "."
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return Root{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Root{}, err
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return Root{dir: abs}, nil
}

func (r Root) Dir() string {
	return r.dir
}

// Resolve maps a protocol path onto the filesystem. Protocol paths are
// slash-separated and relative to the root; a leading slash is ignored.
func (r Root) Resolve(p string) (string, error) {
	rel := strings.TrimLeft(strings.TrimSpace(p), "/")
	if rel == "" {
		rel = "."
	}
	full := filepath.Clean(filepath.Join(r.dir, filepath.FromSlash(rel)))
	if !isWithin(full, r.dir) {
		return "", fmt.Errorf("%w: %q", ErrPathEscapesRoot, p)
	}
	return full, nil
}

// relative is the protocol form of a resolved path.
func (r Root) relative(full string) string {
	rel, err := filepath.Rel(r.dir, full)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// List returns the direct children of dir in name order. Directories carry
// packet.DirSize.
func (r Root) List(dir string) ([]packet.FileEntry, error) {
	full, err := r.Resolve(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %q", ErrNotDirectory, dir)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}

	out := make([]packet.FileEntry, 0, len(entries))
	for _, e := range entries {
		size := packet.DirSize
		if !e.IsDir() {
			info, err := e.Info()
			if err != nil {
				continue
			}
			size = info.Size()
		}
		out = append(out, packet.FileEntry{Path: r.relative(filepath.Join(full, e.Name())), Size: size})
	}
	return out, nil
}

// ReadFile returns the contents and modification time (unix seconds) of a
// regular file under the root.
func (r Root) ReadFile(p string) ([]byte, int64, error) {
	full, err := r.Resolve(p)
	if err != nil {
		return nil, 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		return nil, 0, fmt.Errorf("%w: %q", ErrNotRegularFile, p)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, 0, err
	}
	return data, info.ModTime().Unix(), nil
}

func isWithin(path string, root string) bool {
	p := filepath.Clean(path)
	r := filepath.Clean(root)
	if p == r {
		return true
	}
	return strings.HasPrefix(p, r+string(os.PathSeparator))
}
