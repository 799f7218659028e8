package chunk

import "fmt"

// Pos is a chunk coordinate (block coordinate >> 4).
type Pos struct {
	X int32
	Z int32
}

// Pack encodes the position as a single long: X in the low 32 bits, Z in the high 32 bits.
func (p Pos) Pack() int64 {
	return int64(uint64(uint32(p.X)) | uint64(uint32(p.Z))<<32)
}

func Unpack(v int64) Pos {
	return Pos{X: int32(v), Z: int32(v >> 32)}
}

func (p Pos) ChessboardDistance(o Pos) int {
	dx := abs(int(p.X) - int(o.X))
	dz := abs(int(p.Z) - int(o.Z))
	if dx > dz {
		return dx
	}
	return dz
}

// Region returns the region file coordinates holding this chunk.
func (p Pos) Region() (rx, rz int32) {
	return p.X >> 5, p.Z >> 5
}

// Local returns the chunk's slot inside its region file.
func (p Pos) Local() (x, z int) {
	return int(p.X & 31), int(p.Z & 31)
}

func (p Pos) String() string {
	return fmt.Sprintf("[%d, %d]", p.X, p.Z)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
