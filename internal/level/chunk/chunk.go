package chunk

import (
	"chunkfix.dev/internal/level/structure"
	"chunkfix.dev/internal/level/tag"
)

// Chunk is the in-memory form of one deserialized chunk. Only the structure
// data is decoded; the rest of the tag travels with the chunk untouched.
type Chunk struct {
	pos  Pos
	root tag.Compound

	starts []structure.Start
	refs   *structure.References

	modified bool
}

func New(pos Pos, root tag.Compound) *Chunk {
	return &Chunk{
		pos:  pos,
		root: root,
		refs: structure.NewReferences(),
	}
}

func (c *Chunk) Pos() Pos { return c.pos }

// Root is the chunk's full tag as read from storage.
func (c *Chunk) Root() tag.Compound { return c.root }

// SetModified marks the chunk for writing on the next save.
func (c *Chunk) SetModified(v bool) { c.modified = v }
func (c *Chunk) Modified() bool     { return c.modified }

func (c *Chunk) SetStructureStarts(starts []structure.Start) {
	c.starts = starts
}

func (c *Chunk) StructureStarts() []structure.Start { return c.starts }

func (c *Chunk) SetStructureReferences(refs *structure.References) {
	if refs == nil {
		refs = structure.NewReferences()
	}
	c.refs = refs
}

func (c *Chunk) StructureReferences() *structure.References { return c.refs }
