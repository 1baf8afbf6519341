// Package fstree builds serializable snapshots of directory trees.
package fstree

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// TimeLayout is the modifiedDate format, rendered in local time.
const TimeLayout = time.DateTime

// Node is one entry of a snapshot. Files carry Size and ModifiedDate;
// directories always serialize a children array, even when empty.
type Node struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	IsDirectory  bool   `json:"isDirectory"`
	Size         int64  `json:"size,omitempty"`
	ModifiedDate string `json:"modifiedDate,omitempty"`
	Children     []Node `json:"children,omitempty"`
}

type fileNode struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	IsDirectory  bool   `json:"isDirectory"`
	Size         int64  `json:"size"`
	ModifiedDate string `json:"modifiedDate"`
}

type dirNode struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	IsDirectory bool   `json:"isDirectory"`
	Children    []Node `json:"children"`
}

func (n Node) MarshalJSON() ([]byte, error) {
	if n.IsDirectory {
		children := n.Children
		if children == nil {
			children = []Node{}
		}
		return json.Marshal(dirNode{Name: n.Name, Path: n.Path, IsDirectory: true, Children: children})
	}
	return json.Marshal(fileNode{Name: n.Name, Path: n.Path, Size: n.Size, ModifiedDate: n.ModifiedDate})
}

// Build scans root recursively and returns its entries ordered by name. Paths
// are relative to root with forward slashes. Entries that cannot be read are
// skipped. Directory symlinks appear empty. A missing root yields an empty
// snapshot.
func Build(root string) []Node {
	return build(root, root)
}

func build(dir, root string) []Node {
	nodes := []Node{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nodes
	}
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		info, err := os.Stat(full)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			continue
		}
		node := Node{
			Name:        entry.Name(),
			Path:        filepath.ToSlash(rel),
			IsDirectory: info.IsDir(),
		}
		switch {
		case info.IsDir() && entry.Type()&fs.ModeSymlink != 0:
			// listed, not followed; a link back to an ancestor would never end
			node.Children = []Node{}
		case info.IsDir():
			node.Children = build(full, root)
		case info.Mode().IsRegular():
			node.Size = info.Size()
			node.ModifiedDate = FormatTime(info.ModTime())
		default:
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// Directories returns the top-level directories of root, ordered by name.
func Directories(root string) []fs.DirEntry {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	out := entries[:0]
	for _, e := range entries {
		info, err := os.Stat(filepath.Join(root, e.Name()))
		if err != nil || !info.IsDir() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FormatTime renders t in local time using TimeLayout.
func FormatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}

// Marshal serializes a snapshot; an empty snapshot is "[]".
func Marshal(nodes []Node) ([]byte, error) {
	if nodes == nil {
		nodes = []Node{}
	}
	return json.Marshal(nodes)
}
