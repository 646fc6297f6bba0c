// pgjit CLI - runs a program with profile-guided compilation installed
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/pgjit/compiler"
	"github.com/chazu/pgjit/config"
	"github.com/chazu/pgjit/jit"
	"github.com/chazu/pgjit/jit/emit"
	"github.com/chazu/pgjit/jit/journal"
	"github.com/chazu/pgjit/vm"
)

var log = commonlog.GetLogger("pgjit")

func main() {
	if len(os.Args) > 1 && os.Args[1] == "journal" {
		if err := runJournal(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Config file (default: nearest pgjit.toml)")
	verbose := flag.Int("v", -1, "Log verbosity, overrides the config file")
	noJIT := flag.Bool("no-jit", false, "Run in the interpreter only")
	entry := flag.String("m", "", "Function to call after the program runs")
	times := flag.Int("n", 3, "Number of calls of the -m function")
	stats := flag.Bool("stats", false, "Print compilation statistics on exit")
	dumpIL := flag.Bool("il", false, "Print the IL of every compiled function on exit")
	graph := flag.Bool("graph", false, "Print the instruction graph of every compiled function on exit")
	journalPath := flag.String("journal", "", "Record compiles to this database")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pgjit [options] file.py\n")
		fmt.Fprintf(os.Stderr, "       pgjit journal [options] [database]\n\n")
		fmt.Fprintf(os.Stderr, "Runs file.py with the profile-guided JIT installed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pgjit prog.py                   # Run prog.py\n")
		fmt.Fprintf(os.Stderr, "  pgjit -m main -n 5 -stats prog.py  # Call main five times, print statistics\n")
		fmt.Fprintf(os.Stderr, "  pgjit -il prog.py               # Show the IL of compiled functions\n")
		fmt.Fprintf(os.Stderr, "  pgjit journal -failed           # List failed compiles\n")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return 2
	}
	path := flag.Arg(0)

	cfg, err := loadConfig(*configPath, filepath.Dir(path))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	verbosity := cfg.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, cfg.LogFile())

	opts := cfg.JITOptions()
	opts.Graph = opts.Graph || *graph
	if *journalPath == "" {
		*journalPath = cfg.JournalPath()
	}
	if *journalPath != "" {
		j, err := journal.Open(context.Background(), *journalPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer j.Close()
		opts.Recorder = j
	}

	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	rt := vm.NewRuntime()
	var pj *jit.JIT
	if !*noJIT {
		pj, err = jit.Install(rt, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer pj.Uninstall()
	}

	code := 0
	err = rt.Run(func(ts *vm.Thread) error {
		return runProgram(ts, string(source), path, *entry, *times)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		code = 1
	}

	if pj != nil {
		out := os.Stdout
		if *stats {
			printStats(out, pj)
		}
		if *dumpIL || *graph {
			printCodes(out, pj, *dumpIL, *graph)
		}
	}
	return code
}

func loadConfig(path, dir string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, err := config.FindAndLoad(dir)
	if err != nil || cfg != nil {
		return cfg, err
	}
	return config.Default(), nil
}

// runProgram executes source as a module and then calls entry times times.
func runProgram(ts *vm.Thread, source, filename, entry string, times int) error {
	globals, err := compiler.Exec(ts, source, filename)
	if err != nil {
		return describe(err)
	}
	defer vm.DecRef(globals)
	if entry == "" {
		return nil
	}

	fn := globals.GetStr(entry)
	if fn == nil {
		return fmt.Errorf("%s: no function %q", filename, entry)
	}
	for i := 0; i < times; i++ {
		res, err := vm.Call(ts, fn, nil)
		if err != nil {
			return describe(err)
		}
		log.Debugf("%s() call %d = %s", entry, i+1, vm.Repr(res))
		if i == times-1 && res != vm.Object(vm.None) {
			fmt.Fprintln(ts.Runtime().Stdout, vm.Repr(res))
		}
		vm.DecRef(res)
	}
	return nil
}

// describe renders a raised exception as Kind: message.
func describe(err error) error {
	e, ok := vm.AsException(err)
	if !ok {
		return err
	}
	defer vm.ReleaseError(err)
	return fmt.Errorf("%s: %s", vm.ExceptionKind(err), e.Message())
}

func heading(w io.Writer, s string) {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		fmt.Fprintf(w, "\x1b[1m%s\x1b[0m\n", s)
		return
	}
	fmt.Fprintln(w, s)
}

func printStats(w io.Writer, pj *jit.JIT) {
	st := pj.Stats()
	heading(w, "JIT statistics")
	fmt.Fprintf(w, "  session:          %s\n", pj.Session())
	fmt.Fprintf(w, "  code objects:     %d\n", st.Codes)
	fmt.Fprintf(w, "  compiles:         %d (%d recompiles)\n", st.Compiles, st.Recompiles)
	fmt.Fprintf(w, "  failures:         %d\n", st.Failures)
	fmt.Fprintf(w, "  compiled runs:    %d\n", st.CompiledRuns)
	fmt.Fprintf(w, "  interpreted runs: %d\n", st.InterpretedRuns)
	fmt.Fprintf(w, "  probe runs:       %d\n", st.ProbeRuns)
	fmt.Fprintf(w, "  alloc records:    %d\n", st.AllocRecords)

	codes := pj.Codes()
	if len(codes) == 0 {
		return
	}
	heading(w, "Code objects")
	for _, info := range codes {
		switch {
		case info.Failed:
			fmt.Fprintf(w, "  %-20s failed: %v\n", info.Name, info.Reason)
		case info.Compiled:
			fmt.Fprintf(w, "  %-20s %-18s %6d runs  %s\n",
				info.Name, info.Status, info.RunCount, units.HumanSize(float64(info.NativeSize)))
		default:
			fmt.Fprintf(w, "  %-20s %-18s %6d runs\n", info.Name, info.Status, info.RunCount)
		}
	}
}

func printCodes(w io.Writer, pj *jit.JIT, il, graph bool) {
	for _, info := range pj.Codes() {
		if !info.Compiled || info.Failed {
			continue
		}
		heading(w, info.Name)
		if il {
			if decoded, err := emit.DecodeIL(info.IL); err == nil {
				fmt.Fprint(w, decoded.String())
			}
		}
		if graph && info.Graph != "" {
			fmt.Fprintln(w, strings.TrimRight(info.Graph, "\n"))
		}
	}
}
