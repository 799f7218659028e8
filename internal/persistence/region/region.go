package region

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	mca "github.com/Tnze/go-mc/save/region"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/tag"
)

// Sector compression types.
const (
	CompressionGzip byte = 1
	CompressionZlib byte = 2
	CompressionNone byte = 3
)

const Size = 32

var (
	ErrChunkMissing = errors.New("chunk not present in region")
	ErrOutOfRegion  = errors.New("chunk outside region")

	nameRE = regexp.MustCompile(`^r\.(-?\d+)\.(-?\d+)\.mca$`)
)

// File is an open Anvil region file. It is not safe for concurrent use.
type File struct {
	path   string
	rx, rz int32
	r      *mca.Region
}

// Coords parses the region coordinates out of an "r.X.Z.mca" file name.
func Coords(path string) (rx, rz int32, err error) {
	m := nameRE.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0, 0, fmt.Errorf("not a region file name: %s", filepath.Base(path))
	}
	x, err := strconv.ParseInt(m[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	z, err := strconv.ParseInt(m[2], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return int32(x), int32(z), nil
}

func Open(path string) (*File, error) {
	rx, rz, err := Coords(path)
	if err != nil {
		return nil, err
	}
	r, err := mca.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open region %s: %w", path, err)
	}
	return &File{path: path, rx: rx, rz: rz, r: r}, nil
}

// Create makes a new empty region file at path.
func Create(path string) (*File, error) {
	rx, rz, err := Coords(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	r, err := mca.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create region %s: %w", path, err)
	}
	return &File{path: path, rx: rx, rz: rz, r: r}, nil
}

func (f *File) Path() string { return f.path }

func (f *File) Close() error { return f.r.Close() }

// Chunks lists the positions of all chunks stored in the file, row by row (z, then x).
func (f *File) Chunks() []chunk.Pos {
	var out []chunk.Pos
	for z := 0; z < Size; z++ {
		for x := 0; x < Size; x++ {
			if f.r.ExistSector(x, z) {
				out = append(out, chunk.Pos{X: f.rx*Size + int32(x), Z: f.rz*Size + int32(z)})
			}
		}
	}
	return out
}

func (f *File) local(pos chunk.Pos) (int, int, error) {
	if rx, rz := pos.Region(); rx != f.rx || rz != f.rz {
		return 0, 0, fmt.Errorf("chunk %s in r.%d.%d: %w", pos, f.rx, f.rz, ErrOutOfRegion)
	}
	x, z := pos.Local()
	return x, z, nil
}

// ReadRaw returns the decompressed NBT payload of a chunk.
func (f *File) ReadRaw(pos chunk.Pos) ([]byte, error) {
	x, z, err := f.local(pos)
	if err != nil {
		return nil, err
	}
	if !f.r.ExistSector(x, z) {
		return nil, fmt.Errorf("chunk %s: %w", pos, ErrChunkMissing)
	}
	data, err := f.r.ReadSector(x, z)
	if err != nil {
		return nil, fmt.Errorf("read sector %s: %w", pos, err)
	}
	return Decompress(data)
}

func (f *File) ReadChunk(pos chunk.Pos) (tag.Compound, error) {
	raw, err := f.ReadRaw(pos)
	if err != nil {
		return nil, err
	}
	c, err := tag.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %w", pos, err)
	}
	return c, nil
}

// WriteChunk stores root zlib-compressed, the format the game writes.
func (f *File) WriteChunk(pos chunk.Pos, root tag.Compound) error {
	x, z, err := f.local(pos)
	if err != nil {
		return err
	}
	raw, err := root.Encode()
	if err != nil {
		return fmt.Errorf("chunk %s: %w", pos, err)
	}
	data, err := Compress(CompressionZlib, raw)
	if err != nil {
		return err
	}
	if err := f.r.WriteSector(x, z, data); err != nil {
		return fmt.Errorf("write sector %s: %w", pos, err)
	}
	return nil
}

// Decompress strips the compression type byte of a sector payload and inflates the rest.
func Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty sector")
	}
	body := bytes.NewReader(data[1:])
	var r io.Reader
	switch data[0] {
	case CompressionGzip:
		zr, err := gzip.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionZlib:
		zr, err := zlib.NewReader(body)
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		defer zr.Close()
		r = zr
	case CompressionNone:
		r = body
	default:
		return nil, fmt.Errorf("unknown compression type %d", data[0])
	}
	return io.ReadAll(r)
}

// Compress returns a sector payload: the compression type byte followed by the body.
func Compress(kind byte, raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(kind)
	var w io.WriteCloser
	switch kind {
	case CompressionGzip:
		w = gzip.NewWriter(&buf)
	case CompressionZlib:
		w = zlib.NewWriter(&buf)
	case CompressionNone:
		buf.Write(raw)
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression type %d", kind)
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// List returns the region files in dir, sorted by name. A missing dir yields no files.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !nameRE.MatchString(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// Backup copies the region file to path+".bak" unless a backup already exists.
func Backup(path string) (string, error) {
	dst := path + ".bak"
	if _, err := os.Stat(dst); err == nil {
		return dst, nil
	}
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return "", err
	}
	return dst, out.Close()
}
