package reword

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/witanlabs/rowsmith/client"
	"github.com/witanlabs/rowsmith/internal/faults"
)

func writeUnits(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(b)
}

func TestProcessAll_UppercaseScenario(t *testing.T) {
	in, out := t.TempDir(), filepath.Join(t.TempDir(), "reworded")
	writeUnits(t, in, map[string]string{
		"row_2_col_Description.txt": "<p>Hello</p>",
		"row_3_col_Description.txt": "No markup",
		"row_4_col_Description.txt": "<p>a</p><p>b</p>",
		"README.md":                 "ignored",
	})

	res, err := ProcessAll(context.Background(), in, out, upper(), Options{})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if res.Succeeded != 3 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}

	want := map[string]string{
		"row_2_col_Description.txt": "<p>HELLO</p>",
		"row_3_col_Description.txt": "No markup",
		"row_4_col_Description.txt": "<p>A</p><p>B</p>",
	}
	for name, text := range want {
		if got := readFile(t, filepath.Join(out, name)); got != text {
			t.Fatalf("%s = %q, want %q", name, got, text)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "README.md")); !os.IsNotExist(err) {
		t.Fatalf("non-unit file must not be copied, stat err = %v", err)
	}
}

func TestProcessAll_OrderByIdentifierUnparsableLast(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	names := []string{
		"row_10_col_A.txt",
		"row_x_col_A.txt",
		"row_2_col_A.txt",
		"row_3_col_A.txt",
		"row_.txt",
	}
	files := make(map[string]string, len(names))
	for _, n := range names {
		files[n] = n
	}
	writeUnits(t, in, files)

	var seen []string
	b := client.BackendFunc(func(_ context.Context, text string) (string, error) {
		seen = append(seen, text)
		return text, nil
	})
	res, err := ProcessAll(context.Background(), in, out, b, Options{Mode: ModeWhole})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if res.Succeeded != len(names) {
		t.Fatalf("unparsable names must still be processed: %+v", res)
	}
	want := []string{"row_2_col_A.txt", "row_3_col_A.txt", "row_10_col_A.txt", "row_.txt", "row_x_col_A.txt"}
	if strings.Join(seen, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", seen, want)
	}
}

func TestProcessAll_FailedUnitsWriteNothing(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeUnits(t, in, map[string]string{
		"row_2_col_A.txt": "good",
		"row_3_col_A.txt": "bad",
	})
	b := client.BackendFunc(func(_ context.Context, text string) (string, error) {
		if text == "bad" {
			return "", errors.New("refused")
		}
		return "fine", nil
	})

	res, err := ProcessAll(context.Background(), in, out, b, Options{Mode: ModeWhole})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := readFile(t, filepath.Join(out, "row_2_col_A.txt")); got != "fine" {
		t.Fatalf("row 2 = %q", got)
	}
	if _, err := os.Stat(filepath.Join(out, "row_3_col_A.txt")); !os.IsNotExist(err) {
		t.Fatalf("failed unit must not be written, stat err = %v", err)
	}
}

func TestProcessAll_SpansModeNeverFails(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeUnits(t, in, map[string]string{"row_2_col_A.txt": "<p>keep me</p>"})

	res, err := ProcessAll(context.Background(), in, out, failing(), Options{})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := readFile(t, filepath.Join(out, "row_2_col_A.txt")); got != "<p>keep me</p>" {
		t.Fatalf("got %q", got)
	}
}

func TestProcessAll_Concurrent(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := map[string]string{}
	for i := 2; i < 22; i++ {
		files[fmt.Sprintf("row_%d_col_A.txt", i)] = fmt.Sprintf("<p>unit %d</p>", i)
	}
	writeUnits(t, in, files)

	var inflight, peak atomic.Int32
	var mu sync.Mutex
	calls := map[string]int{}
	b := client.BackendFunc(func(_ context.Context, text string) (string, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		calls[text]++
		mu.Unlock()
		return strings.ToUpper(text), nil
	})

	res, err := ProcessAll(context.Background(), in, out, b, Options{Concurrency: 4})
	if err != nil {
		t.Fatalf("ProcessAll: %v", err)
	}
	if res.Succeeded != 20 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if p := peak.Load(); p > 4 {
		t.Fatalf("peak concurrency %d exceeds limit 4", p)
	}
	if len(calls) != 20 {
		t.Fatalf("expected 20 distinct backend inputs, got %d", len(calls))
	}
	for name, text := range files {
		want := strings.Replace(text, "unit", "UNIT", 1)
		if got := readFile(t, filepath.Join(out, name)); got != want {
			t.Fatalf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestProcessAll_Cancellation(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	writeUnits(t, in, map[string]string{
		"row_2_col_A.txt": "one",
		"row_3_col_A.txt": "two",
		"row_4_col_A.txt": "three",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	b := client.BackendFunc(func(_ context.Context, text string) (string, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return strings.ToUpper(text), nil
	})

	res, err := ProcessAll(ctx, in, out, b, Options{Mode: ModeWhole})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Succeeded != 1 || res.Failed != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := readFile(t, filepath.Join(out, "row_2_col_A.txt")); got != "ONE" {
		t.Fatalf("completed unit = %q", got)
	}
	for _, name := range []string{"row_3_col_A.txt", "row_4_col_A.txt"} {
		if _, err := os.Stat(filepath.Join(out, name)); !os.IsNotExist(err) {
			t.Fatalf("%s must not be written after cancellation, stat err = %v", name, err)
		}
	}
}

func TestProcessAll_MissingInputDir(t *testing.T) {
	_, err := ProcessAll(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), upper(), Options{})
	if !faults.Is(err, faults.CodeSourceUnreadable) {
		t.Fatalf("expected SOURCE_UNREADABLE, got %v", err)
	}
}

func TestProcessAll_EmptyDirCreatesOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	res, err := ProcessAll(context.Background(), t.TempDir(), out, upper(), Options{})
	if err != nil || res != (Result{}) {
		t.Fatalf("got %+v, %v", res, err)
	}
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		t.Fatalf("expected output dir, err = %v", err)
	}
}
