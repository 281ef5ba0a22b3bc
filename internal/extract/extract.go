// Package extract turns the first column of a table into one unit file per
// data row.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/witanlabs/rowsmith/internal/faults"
	"github.com/witanlabs/rowsmith/internal/logging"
	"github.com/witanlabs/rowsmith/internal/table"
	"github.com/witanlabs/rowsmith/internal/unit"
)

// Result summarises one extraction.
type Result struct {
	Count int    `json:"count"`
	Label string `json:"label,omitempty"`
	Dir   string `json:"dir"`
}

// Extract writes one unit file per data row of source into destDir. Either
// every unit is written or none is; a table with no data rows is a no-op
// that does not create destDir.
func Extract(ctx context.Context, source, destDir string, log logging.Logger) (Result, error) {
	log = logging.OrNoOp(log).WithFields(map[string]any{"source": source})
	res := Result{Dir: destDir}

	tbl, err := table.Open(source)
	if err != nil {
		return res, faults.SourceUnreadable(source, err)
	}
	defer tbl.Close()

	res.Label = tbl.Label()
	if tbl.Len() == 0 {
		log.Info("no data rows; nothing extracted")
		return res, nil
	}

	units := make([]unit.Unit, tbl.Len())
	for i := range units {
		units[i] = unit.Unit{ID: unit.IDForIndex(i), Label: res.Label, Text: tbl.Value(i)}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return res, faults.ExtractFailed(destDir, err)
	}
	if err := writeAll(ctx, destDir, units); err != nil {
		return res, faults.ExtractFailed(destDir, err)
	}

	res.Count = len(units)
	log.Info("extracted units", "count", res.Count, "label", res.Label, "dir", destDir)
	return res, nil
}

// rename is swapped in tests to fail a promotion.
var rename = os.Rename

// writeAll stages every unit in a hidden directory under destDir and only
// then renames them into place. Files already in destDir under a unit's name
// are moved aside first; if any promotion fails every promoted unit is
// removed and the moved files are put back.
func writeAll(ctx context.Context, destDir string, units []unit.Unit) error {
	staging, err := os.MkdirTemp(destDir, ".extract-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(staging, u.FileName())
		if err := os.WriteFile(p, []byte(u.Text), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", u.FileName(), err)
		}
	}

	previous, err := os.MkdirTemp(destDir, ".previous-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(previous)

	var promoted []promotion
	for _, u := range units {
		name := u.FileName()
		p := promotion{dst: filepath.Join(destDir, name)}
		if _, err := os.Lstat(p.dst); err == nil {
			p.saved = filepath.Join(previous, name)
			if err := rename(p.dst, p.saved); err != nil {
				rollback(promoted)
				return fmt.Errorf("moving aside %s: %w", name, err)
			}
		}
		promoted = append(promoted, p)
		if err := rename(filepath.Join(staging, name), p.dst); err != nil {
			rollback(promoted)
			return fmt.Errorf("promoting %s: %w", name, err)
		}
	}
	return nil
}

type promotion struct {
	dst   string
	saved string // where the file previously at dst was moved, if any
}

// rollback undoes promotions newest first.
func rollback(promoted []promotion) {
	for i := len(promoted) - 1; i >= 0; i-- {
		p := promoted[i]
		_ = os.Remove(p.dst)
		if p.saved != "" {
			_ = rename(p.saved, p.dst)
		}
	}
}
