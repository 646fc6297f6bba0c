package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/docker/go-units"

	"github.com/chazu/pgjit/jit/emit"
	"github.com/chazu/pgjit/jit/journal"
)

// runJournal lists the entries of a compile journal.
func runJournal(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("journal", flag.ContinueOnError)
	session := fs.String("session", "", "Only entries of this session")
	code := fs.String("code", "", "Only entries of this code object")
	failed := fs.Bool("failed", false, "Only failed compiles")
	limit := fs.Int("limit", 0, "Maximum number of entries")
	il := fs.Bool("il", false, "Print the IL of each entry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "pgjit.db"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	ctx := context.Background()
	j, err := journal.Open(ctx, path)
	if err != nil {
		return err
	}
	defer j.Close()

	f := journal.Filter{Session: *session, Code: *code, Limit: *limit}
	if *failed {
		f.Outcome = journal.Failed
	}
	entries, err := j.Entries(ctx, f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		printEntry(w, e, *il)
	}
	return nil
}

func printEntry(w io.Writer, e journal.Entry, il bool) {
	fmt.Fprintf(w, "%s %s %-20s %s %-18s", e.Created.Format("2006-01-02 15:04:05"), e.Session[:min(8, len(e.Session))], e.Code, e.Fingerprint, e.Stage)
	if e.Outcome == journal.Failed {
		fmt.Fprintf(w, " failed: %s\n", e.Reason)
		return
	}
	fmt.Fprintf(w, " %s\n", units.HumanSize(float64(e.NativeSize)))
	if !il || len(e.IL) == 0 {
		return
	}
	decoded, err := emit.DecodeIL(e.IL)
	if err != nil {
		fmt.Fprintf(w, "  bad IL: %v\n", err)
		return
	}
	fmt.Fprint(w, decoded.String())
}
