package repair

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"chunkfix.dev/internal/level/chunk"
	"chunkfix.dev/internal/level/structure"
	"chunkfix.dev/internal/level/tag"
	"chunkfix.dev/internal/persistence/chunkio"
	"chunkfix.dev/internal/persistence/region"
	"chunkfix.dev/internal/sanitize"
)

type Options struct {
	WorldDir string
	// Dimensions are region-holding directories relative to WorldDir;
	// "" is the overworld, e.g. "DIM-1" for the nether.
	Dimensions []string

	Workers              int
	DryRun               bool
	Backup               bool
	Seed                 int64
	MaxReferenceDistance int
	Registry             *structure.Registry
}

type Runner struct {
	opts      Options
	logger    *log.Logger
	recorders []Recorder
	now       func() time.Time
}

func NewRunner(opts Options, logger *log.Logger, recorders ...Recorder) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if len(opts.Dimensions) == 0 {
		opts.Dimensions = []string{""}
	}
	if opts.Registry == nil {
		opts.Registry = structure.DefaultRegistry()
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[repair] ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Runner{
		opts:      opts,
		logger:    logger,
		recorders: lo.Filter(recorders, func(r Recorder, _ int) bool { return r != nil }),
		now:       time.Now,
	}
}

type job struct {
	dimension string
	path      string
}

// Run scans every region file of the configured dimensions. Region files are
// processed in parallel, each by a single goroutine.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var jobs []job
	for _, dim := range r.opts.Dimensions {
		files, err := region.List(filepath.Join(r.opts.WorldDir, dim, "region"))
		if err != nil {
			return Summary{}, fmt.Errorf("list regions (%q): %w", dim, err)
		}
		for _, f := range files {
			jobs = append(jobs, job{dimension: dim, path: f})
		}
	}

	var (
		mu    sync.Mutex
		total Summary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := r.runRegion(ctx, j)
			mu.Lock()
			total.add(s)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	return total, err
}

func (r *Runner) runRegion(ctx context.Context, j job) (Summary, error) {
	sum := Summary{Regions: 1}
	f, err := region.Open(j.path)
	if err != nil {
		// An unreadable region file must not stop the other regions.
		sum.Failed++
		r.logger.Printf("%s: %v", filepath.Base(j.path), err)
		return sum, nil
	}
	defer f.Close()

	// Positions dropped by the sanitizer for the chunk currently being read.
	// Only this goroutine reads chunks of f.
	var dropped []int64
	ser := &chunkio.Serializer{
		Registry:             r.opts.Registry,
		Seed:                 r.opts.Seed,
		MaxReferenceDistance: r.opts.MaxReferenceDistance,
		Logger:               r.logger,
		Hooks: sanitize.Hooks{OnRemove: func(_ chunk.Pos, positions []int64) {
			dropped = positions
		}},
	}

	backedUp := false
	name := filepath.Base(j.path)
	for _, pos := range f.Chunks() {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Chunks++
		dropped = nil

		raw, err := f.ReadRaw(pos)
		if err != nil {
			sum.Failed++
			r.logger.Printf("%s chunk %s: %v", name, pos, err)
			continue
		}
		root, err := tag.Decode(raw)
		if err != nil {
			sum.Failed++
			r.logger.Printf("%s chunk %s: %v", name, pos, err)
			continue
		}
		c, err := ser.Read(pos, root)
		if err != nil {
			sum.Failed++
			r.logger.Printf("%s chunk %s: %v", name, pos, err)
			continue
		}
		if !c.Modified() {
			continue
		}
		sum.Repaired++

		e := Entry{
			RecordedAt:   r.now().UTC().Format(time.RFC3339Nano),
			World:        r.opts.WorldDir,
			Dimension:    j.dimension,
			Region:       name,
			ChunkX:       pos.X,
			ChunkZ:       pos.Z,
			Dropped:      dropped,
			DigestBefore: digest(raw),
			DryRun:       r.opts.DryRun,
		}
		if err := r.save(f, c, &e, &backedUp); err != nil {
			sum.Failed++
			e.Error = err.Error()
			r.logger.Printf("%s chunk %s: save: %v", name, pos, err)
		} else if e.Saved {
			sum.Saved++
		}
		r.record(e)
	}
	return sum, nil
}

func (r *Runner) save(f *region.File, c *chunk.Chunk, e *Entry, backedUp *bool) error {
	ser := chunkio.Serializer{Registry: r.opts.Registry}
	out, err := ser.Write(c)
	if err != nil {
		return err
	}
	encoded, err := out.Encode()
	if err != nil {
		return err
	}
	e.DigestAfter = digest(encoded)
	if r.opts.DryRun {
		return nil
	}
	if r.opts.Backup && !*backedUp {
		if _, err := region.Backup(f.Path()); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
		*backedUp = true
	}
	if err := f.WriteChunk(c.Pos(), out); err != nil {
		return err
	}
	c.SetModified(false)
	e.Saved = true
	return nil
}

func (r *Runner) record(e Entry) {
	var errs []error
	for _, rec := range r.recorders {
		if err := rec.RecordRepair(e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.logger.Printf("record repair %s [%d, %d]: %v", e.Region, e.ChunkX, e.ChunkZ, err)
	}
}

func digest(b []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(b))
}
