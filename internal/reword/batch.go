package reword

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/witanlabs/rowsmith/client"
	"github.com/witanlabs/rowsmith/internal/atomicfile"
	"github.com/witanlabs/rowsmith/internal/faults"
	"github.com/witanlabs/rowsmith/internal/unit"
)

// Result counts the units of one batch.
type Result struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type candidate struct {
	name   string
	id     unit.ID
	parsed bool
}

// ProcessAll rewords every unit file in inDir into a file of the same name
// in outDir. Units are visited in identifier order; names that do not parse
// are processed last. A failed unit writes nothing. On cancellation the
// counts so far are returned with ctx.Err().
func ProcessAll(ctx context.Context, inDir, outDir string, backend client.Backend, opts Options) (Result, error) {
	opts = opts.withDefaults()
	log := opts.Logger.WithFields(map[string]any{"input": inDir, "output": outDir})

	entries, err := os.ReadDir(inDir)
	if err != nil {
		return Result{}, faults.SourceUnreadable(inDir, err)
	}
	cands := candidates(entries)
	for _, c := range cands {
		if !c.parsed {
			log.Warn("unit name does not follow "+unit.Pattern+"; processing it last", "file", c.name)
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating %s: %w", outDir, err)
	}

	var succeeded, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(opts.Concurrency)

	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			switch processOne(ctx, inDir, outDir, c.name, backend, opts) {
			case outcomeDone:
				succeeded.Add(1)
			case outcomeFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Succeeded: int(succeeded.Load()), Failed: int(failed.Load())}
	if err := ctx.Err(); err != nil {
		log.Warn("batch interrupted", "succeeded", res.Succeeded, "failed", res.Failed, "error", err)
		return res, err
	}
	log.Info("batch finished", "succeeded", res.Succeeded, "failed", res.Failed)
	return res, nil
}

type outcome int

const (
	outcomeDone outcome = iota
	outcomeFailed
	outcomeAbandoned
)

func processOne(ctx context.Context, inDir, outDir, name string, backend client.Backend, opts Options) outcome {
	log := opts.Logger.WithFields(map[string]any{"file": name})

	raw, err := os.ReadFile(filepath.Join(inDir, name))
	if err != nil {
		log.Error("reading unit failed", "error", err)
		return outcomeFailed
	}

	out, ok := Unit(ctx, string(raw), backend, opts)
	if ctx.Err() != nil {
		// Spans rewritten after the cancellation fell back to the original
		// text; the unit is left for the next run instead of being half done.
		return outcomeAbandoned
	}
	if !ok {
		log.Warn("no rewrite produced; unit skipped")
		return outcomeFailed
	}

	if err := atomicfile.WriteFile(filepath.Join(outDir, name), []byte(out), 0o644); err != nil {
		log.Error("writing unit failed", "error", err)
		return outcomeFailed
	}
	log.Debug("unit reworded")
	return outcomeDone
}

// candidates filters unit files and orders them by identifier, unparsable
// names last, ties broken by name.
func candidates(entries []os.DirEntry) []candidate {
	out := make([]candidate, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !unit.IsCandidate(e.Name()) {
			continue
		}
		c := candidate{name: e.Name()}
		if id, err := unit.ParseFileName(e.Name()); err == nil {
			c.id, c.parsed = id, true
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.parsed != b.parsed {
			return a.parsed
		}
		if a.parsed && a.id != b.id {
			return a.id < b.id
		}
		return a.name < b.name
	})
	return out
}
