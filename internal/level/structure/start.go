package structure

import "github.com/Tnze/go-mc/nbt"

// InvalidStartID marks a start entry that carries no structure.
const InvalidStartID = "INVALID"

// Start is a resolved structure start. The full start compound is kept
// encoded so a re-save writes it back unchanged.
type Start struct {
	Type   *Type
	ChunkX int32
	ChunkZ int32
	Raw    nbt.RawMessage

	// Invalid starts hold no structure pieces but are saved again as read.
	Invalid bool
}
