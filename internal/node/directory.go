package node

import (
	"cmp"
	"slices"
)

// Directory aggregates the files and directories below it. Totals are
// computed on first use and reset whenever a child is attached anywhere
// below.
type Directory struct {
	base
	directories []*Directory
	files       []*File

	stats     *Stats
	classes   []*Class
	traits    []*Class
	functions []*Function
}

// NewDirectory creates a root directory, or a child when parent is set
func NewDirectory(name string, parent *Directory) *Directory {
	return &Directory{base: base{name: name, parent: parent}}
}

func (d *Directory) ID() string           { return d.id() }
func (d *Directory) PathAsString() string { return d.path() }
func (d *Directory) PathAsArray() []Node  { return pathAsArray(d) }

// Directories returns the subdirectories sorted by name
func (d *Directory) Directories() []*Directory { return d.directories }

// Files returns the files directly in d sorted by name
func (d *Directory) Files() []*File { return d.files }

// Children returns directories first, then files
func (d *Directory) Children() []Node {
	out := make([]Node, 0, len(d.directories)+len(d.files))
	for _, sub := range d.directories {
		out = append(out, sub)
	}
	for _, f := range d.files {
		out = append(out, f)
	}
	return out
}

// AllFiles returns every file below d, depth first
func (d *Directory) AllFiles() []*File {
	var out []*File
	for _, sub := range d.directories {
		out = append(out, sub.AllFiles()...)
	}
	return append(out, d.files...)
}

// AddDirectory attaches and returns a new subdirectory called name
func (d *Directory) AddDirectory(name string) *Directory {
	sub := NewDirectory(name, d)
	d.directories = append(d.directories, sub)
	slices.SortFunc(d.directories, func(a, b *Directory) int { return cmp.Compare(a.name, b.name) })
	d.invalidate()
	return sub
}

// AddFile attaches f, whose parent must be d
func (d *Directory) AddFile(f *File) {
	f.parent = d
	d.files = append(d.files, f)
	slices.SortFunc(d.files, func(a, b *File) int { return cmp.Compare(a.name, b.name) })
	d.invalidate()
}

func (d *Directory) invalidate() {
	for dir := d; dir != nil; dir = dir.parent {
		dir.stats = nil
		dir.classes, dir.traits, dir.functions = nil, nil, nil
	}
}

// Stats sums the totals of all children
func (d *Directory) Stats() Stats {
	if d.stats == nil {
		var s Stats
		for _, child := range d.Children() {
			s.add(child.Stats())
		}
		d.stats = &s
	}
	return *d.stats
}

func (d *Directory) Classes() []*Class {
	if d.classes == nil {
		d.classes = []*Class{}
		for _, child := range d.Children() {
			d.classes = append(d.classes, child.Classes()...)
		}
	}
	return d.classes
}

func (d *Directory) Traits() []*Class {
	if d.traits == nil {
		d.traits = []*Class{}
		for _, child := range d.Children() {
			d.traits = append(d.traits, child.Traits()...)
		}
	}
	return d.traits
}

func (d *Directory) Functions() []*Function {
	if d.functions == nil {
		d.functions = []*Function{}
		for _, child := range d.Children() {
			d.functions = append(d.functions, child.Functions()...)
		}
	}
	return d.functions
}

// ClassesAndTraits returns classes followed by traits
func (d *Directory) ClassesAndTraits() []*Class {
	return append(slices.Clone(d.Classes()), d.Traits()...)
}
