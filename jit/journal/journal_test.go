package journal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	il := bytes.Repeat([]byte{3, 1, 2, 3, 4}, 200)
	entries := []Entry{
		{Session: "s1", Code: "f", Fingerprint: Fingerprint([]byte{100, 0}), Stage: "CompiledWithProbes", Outcome: Compiled, NativeSize: 64, IL: il},
		{Session: "s1", Code: "g", Fingerprint: Fingerprint([]byte{101, 0}), Stage: "Uncompiled", Outcome: Failed, Reason: "offset 4 (LOAD_NAME): unsupported opcode"},
		{Session: "s2", Code: "f", Fingerprint: Fingerprint([]byte{100, 0}), Stage: "Optimized", Outcome: Compiled, NativeSize: 48, IL: il[:10]},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"f/CompiledWithProbes", "g/Uncompiled", "f/Optimized"}},
		{"by code", Filter{Code: "f"}, []string{"f/CompiledWithProbes", "f/Optimized"}},
		{"by session", Filter{Session: "s1"}, []string{"f/CompiledWithProbes", "g/Uncompiled"}},
		{"failures", Filter{Outcome: Failed}, []string{"g/Uncompiled"}},
		{"limit", Filter{Limit: 1}, []string{"f/CompiledWithProbes"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := j.Entries(ctx, tc.filter)
			if err != nil {
				t.Fatalf("Entries: %v", err)
			}
			var keys []string
			for _, e := range got {
				keys = append(keys, e.Code+"/"+e.Stage)
			}
			if diff := cmp.Diff(tc.want, keys); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}
		})
	}

	got, err := j.Entries(ctx, Filter{Session: "s1", Code: "f"})
	if err != nil || len(got) != 1 {
		t.Fatalf("Entries = %v, %v", got, err)
	}
	e := got[0]
	if !bytes.Equal(e.IL, il) {
		t.Errorf("IL round trip lost data: %d bytes, want %d", len(e.IL), len(il))
	}
	if e.NativeSize != 64 || e.Outcome != Compiled {
		t.Errorf("entry = %+v", e)
	}
	if time.Since(e.Created) > time.Minute {
		t.Errorf("Created = %v, want about now", e.Created)
	}

	failed, _ := j.Entries(ctx, Filter{Outcome: Failed})
	if failed[0].IL != nil || failed[0].Reason == "" {
		t.Errorf("failed entry = %+v", failed[0])
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Record(ctx, Entry{Session: "s", Code: "f", Fingerprint: "0", Stage: "Optimized", Outcome: Compiled}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := j.Record(ctx, Entry{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record after Close = %v, want ErrClosed", err)
	}
	if _, err := j.Entries(ctx, Filter{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Entries after Close = %v, want ErrClosed", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	j, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer j.Close()
	got, err := j.Entries(ctx, Filter{})
	if err != nil || len(got) != 1 || got[0].Code != "f" {
		t.Errorf("Entries after reopen = %v, %v", got, err)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte{100, 0, 83, 0})
	if a != Fingerprint([]byte{100, 0, 83, 0}) {
		t.Error("fingerprint is not deterministic")
	}
	if a == Fingerprint([]byte{100, 1, 83, 0}) {
		t.Error("different bytecode has the same fingerprint")
	}
	if len(a) != 16 {
		t.Errorf("fingerprint %q is not 16 hex digits", a)
	}
}
