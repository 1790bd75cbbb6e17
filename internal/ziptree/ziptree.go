// Package ziptree builds the in-memory directory tree of an archive.
//
// The tree is built once from the flat entry list of an [archive.Index] and
// is never mutated afterwards, so it can be read without synchronization.
package ziptree

import (
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/desertwitch/zipmount/internal/archive"
)

// ErrDuplicateEntry is returned by [Build] for a repeated member path,
// but only when [Options.StrictDuplicates] is enabled.
var ErrDuplicateEntry = errors.New("duplicate archive entry")

// Kind is the tag of a [Node].
type Kind uint8

const (
	// KindDir is a directory node holding child nodes.
	KindDir Kind = iota + 1

	// KindFile is a leaf node referencing an archive entry.
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Node is either a directory (children in insertion order) or a file.
type Node struct {
	Kind  Kind
	Name  string         // Last path segment ("" for the root).
	Path  string         // Full path without leading slash ("" for the root).
	Entry *archive.Entry // Only set for [KindFile].

	names    []string
	children map[string]*Node
}

func newDirNode(name, path string) *Node {
	return &Node{
		Kind:     KindDir,
		Name:     name,
		Path:     path,
		children: make(map[string]*Node),
	}
}

// Child returns the direct child of the given name.
func (n *Node) Child(name string) (*Node, bool) {
	c, ok := n.children[name]

	return c, ok
}

// Len returns the amount of direct children.
func (n *Node) Len() int {
	return len(n.names)
}

// Names yields the names of the direct children in insertion order.
func (n *Node) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range n.names {
			if !yield(name) {
				return
			}
		}
	}
}

// Children yields the direct children in insertion order.
func (n *Node) Children() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		for _, name := range n.names {
			if !yield(name, n.children[name]) {
				return
			}
		}
	}
}

// FirstFile returns the entry of the first file found by a depth-first
// descent in child order. It returns false if the subtree holds no files.
func (n *Node) FirstFile() (*archive.Entry, bool) {
	switch n.Kind {
	case KindFile:
		return n.Entry, true

	case KindDir:
		for _, name := range n.names {
			if e, ok := n.children[name].FirstFile(); ok {
				return e, true
			}
		}
	}

	return nil, false
}

// add appends a new child, which must not exist yet.
func (n *Node) add(child *Node) {
	n.names = append(n.names, child.Name)
	n.children[child.Name] = child
}

// replace swaps an existing child, keeping its position.
func (n *Node) replace(child *Node) {
	n.children[child.Name] = child
}

// Options contains the settings for building a [Tree].
type Options struct {
	// StrictDuplicates fails the build on a repeated member path,
	// instead of letting the last entry of that path win.
	StrictDuplicates bool

	// Logf receives notices about duplicate or colliding entries.
	Logf func(format string, args ...any)
}

// Tree is the directory tree of an archive, along with a flat index from
// every full path (including all directory prefixes and "" for the root)
// to its node.
type Tree struct {
	root  *Node
	index map[string]*Node

	dirs       int
	files      int
	duplicates int
}

// Build constructs the [Tree] from the given entries.
// Directories without a record of their own are materialized as well.
func Build(entries []*archive.Entry, opts *Options) (*Tree, error) {
	if opts == nil {
		opts = &Options{}
	}

	t := &Tree{
		root:  newDirNode("", ""),
		index: make(map[string]*Node, len(entries)+1),
	}

	for _, e := range entries {
		if err := t.insert(e, opts); err != nil {
			return nil, err
		}
	}
	t.index[""] = t.root

	return t, nil
}

func (t *Tree) insert(e *archive.Entry, opts *Options) error {
	segments := strings.Split(e.Path, "/")

	dirSegments, name := segments[:len(segments)-1], segments[len(segments)-1]
	if e.IsDir {
		dirSegments, name = segments, ""
	}

	cur := t.root
	for _, seg := range dirSegments {
		cur = t.walkDir(cur, seg, opts)
	}

	if name == "" {
		return nil
	}

	existing, ok := cur.children[name]
	if !ok {
		leaf := &Node{Kind: KindFile, Name: name, Path: e.Path, Entry: e}
		cur.add(leaf)
		t.index[e.Path] = leaf
		t.files++

		return nil
	}

	if existing.Kind == KindDir {
		logf(opts, "Skipped: %q (file collides with a directory)\n", e.Path)

		return nil
	}

	if opts.StrictDuplicates {
		return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.Path)
	}

	logf(opts, "Duplicate: %q (last entry wins)\n", e.Path)
	t.duplicates++

	leaf := &Node{Kind: KindFile, Name: name, Path: e.Path, Entry: e}
	cur.replace(leaf)
	t.index[e.Path] = leaf

	return nil
}

// walkDir returns the directory child seg of parent, creating it if needed.
func (t *Tree) walkDir(parent *Node, seg string, opts *Options) *Node {
	p := joinPath(parent.Path, seg)

	if child, ok := parent.children[seg]; ok {
		if child.Kind == KindDir {
			return child
		}

		logf(opts, "Replaced: %q (file collides with a directory)\n", p)
		t.files--

		dir := newDirNode(seg, p)
		parent.replace(dir)
		t.index[p] = dir
		t.dirs++

		return dir
	}

	dir := newDirNode(seg, p)
	parent.add(dir)
	t.index[p] = dir
	t.dirs++

	return dir
}

// Root returns the root directory node.
func (t *Tree) Root() *Node {
	return t.root
}

// Lookup resolves a full path (without leading slash) to its node.
func (t *Tree) Lookup(path string) (*Node, bool) {
	n, ok := t.index[path]

	return n, ok
}

// Len returns the amount of paths in the index, including the root.
func (t *Tree) Len() int {
	return len(t.index)
}

// Dirs returns the amount of directories, excluding the root.
func (t *Tree) Dirs() int {
	return t.dirs
}

// Files returns the amount of files.
func (t *Tree) Files() int {
	return t.files
}

// Duplicates returns the amount of entries that replaced an earlier one.
func (t *Tree) Duplicates() int {
	return t.duplicates
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}

func logf(opts *Options, format string, args ...any) {
	if opts.Logf != nil {
		opts.Logf(format, args...)
	}
}
