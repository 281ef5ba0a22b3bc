// Package merge writes edited unit files back into a copy of the table they
// were extracted from. The original is never modified.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/witanlabs/rowsmith/internal/atomicfile"
	"github.com/witanlabs/rowsmith/internal/faults"
	"github.com/witanlabs/rowsmith/internal/logging"
	"github.com/witanlabs/rowsmith/internal/table"
	"github.com/witanlabs/rowsmith/internal/unit"
)

// ErrOutputIsSource is returned when the merge output would overwrite the
// table being merged into.
var ErrOutputIsSource = errors.New("output path is the source table; choose another -o")

// EditSet maps a row identifier to its replacement first-column text.
type EditSet map[unit.ID]string

// LoadEdits reads every unit file in dir. Names that do not parse are
// logged and skipped. When two files carry the same identifier the one
// whose name sorts last wins.
func LoadEdits(dir string, log logging.Logger) (EditSet, error) {
	log = logging.OrNoOp(log)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && unit.IsCandidate(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	edits := make(EditSet, len(names))
	from := make(map[unit.ID]string, len(names))
	for _, name := range names {
		id, err := unit.ParseFileName(name)
		if err != nil {
			log.Warn("skipping unit file", "file", name, "error", err)
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		if prev, dup := from[id]; dup {
			log.Warn("duplicate row identifier; later file wins", "row", int(id), "kept", name, "ignored", prev)
		}
		edits[id] = string(data)
		from[id] = name
	}
	return edits, nil
}

// Result summarises one merge.
type Result struct {
	Updated int       `json:"updated"`
	Dropped []unit.ID `json:"dropped,omitempty"`
	Output  string    `json:"output"`
}

// DefaultOutputPath returns "<name>_new<ext>" next to original.
func DefaultOutputPath(original string) string {
	ext := filepath.Ext(original)
	return strings.TrimSuffix(original, ext) + "_new" + ext
}

// Merge copies original to outPath and replaces the first-column value of
// every row that has an edit in editsDir. Edits without a matching row are
// reported in Result.Dropped. outPath is replaced atomically, so a failed
// merge leaves either no file or an unmodified copy.
func Merge(ctx context.Context, original, editsDir, outPath string, log logging.Logger) (Result, error) {
	log = logging.OrNoOp(log).WithFields(map[string]any{"source": original, "output": outPath})
	res := Result{Output: outPath}

	src, err := table.Open(original)
	if err != nil {
		return res, faults.SourceUnreadable(original, err)
	}
	_ = src.Close()

	if same, err := sameFile(original, outPath); err != nil {
		return res, faults.MergeFailed(outPath, "", err)
	} else if same {
		return res, faults.MergeFailed(outPath, "", ErrOutputIsSource)
	}

	if info, err := os.Stat(editsDir); err != nil {
		return res, faults.SourceUnreadable(editsDir, err)
	} else if !info.IsDir() {
		return res, faults.SourceUnreadable(editsDir, fmt.Errorf("not a directory"))
	}

	if err := atomicfile.Copy(original, outPath, 0o644); err != nil {
		return res, faults.MergeFailed(outPath, "", err)
	}

	edits, err := LoadEdits(editsDir, log)
	if err != nil {
		return res, faults.MergeFailed(editsDir, "", err)
	}
	log.Debug("loaded edits", "count", len(edits))

	data, updated, dropped, err := apply(ctx, outPath, edits)
	if err != nil {
		return res, err
	}
	if err := atomicfile.WriteFile(outPath, data, 0o644); err != nil {
		return res, faults.MergeFailed(outPath, "", err)
	}

	res.Updated = updated
	res.Dropped = dropped
	for _, id := range res.Dropped {
		log.Warn("no destination row for edit", "row", int(id))
	}
	log.Info("merged edits", "updated", res.Updated, "dropped", len(res.Dropped))
	return res, nil
}

// apply sets the edits on the copy at path and returns its serialized form,
// the number of rows written and the identifiers that address no data row.
// Identical content still counts as written.
func apply(ctx context.Context, path string, edits EditSet) ([]byte, int, []unit.ID, error) {
	tbl, err := table.Open(path)
	if err != nil {
		return nil, 0, nil, faults.MergeFailed(path, "", err)
	}
	defer tbl.Close()

	ids := make([]unit.ID, 0, len(edits))
	for id := range edits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var (
		updated int
		dropped []unit.ID
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, 0, nil, err
		}
		i := id.Index()
		if i < 0 || i >= tbl.Len() {
			dropped = append(dropped, id)
			continue
		}
		if err := tbl.SetValue(i, edits[id]); err != nil {
			return nil, 0, nil, faults.MergeFailed(path, tbl.Address(i), err)
		}
		updated++
	}

	data, err := tbl.Bytes()
	if err != nil {
		return nil, 0, nil, faults.MergeFailed(path, "", err)
	}
	return data, updated, dropped, nil
}

// sameFile reports whether out already names the file at original,
// through any path, symlink or hard link.
func sameFile(original, out string) (bool, error) {
	oi, err := os.Stat(original)
	if err != nil {
		return false, err
	}
	ui, err := os.Stat(out)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return os.SameFile(oi, ui), nil
}
