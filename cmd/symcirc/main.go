package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/oisee/symcirc/pkg/circuit"
	"github.com/oisee/symcirc/pkg/netlist"
	"github.com/oisee/symcirc/pkg/pipeline"
	"github.com/oisee/symcirc/pkg/render"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "symcirc",
		Short: "Symbolic Laplace-domain circuit analyzer",
	}

	var verbose bool

	// solve command
	solveCmd := &cobra.Command{
		Use:   "solve [netlist.json]",
		Short: "Solve every result request in a netlist and print the human-readable form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readNetlist(args[0])
			if err != nil {
				return err
			}
			return solveAndPrint(os.Stdout, c, verbose)
		},
	}
	solveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print a failing result's error instead of skipping it silently")

	// script command
	var dialectName string
	var scriptOutput string

	scriptCmd := &cobra.Command{
		Use:   "script [netlist.json]",
		Short: "Solve every result request and emit a numeric back-end script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readNetlist(args[0])
			if err != nil {
				return err
			}
			dialect, err := scriptDialect(dialectName)
			if err != nil {
				return err
			}

			w := os.Stdout
			if scriptOutput != "" {
				f, err := os.Create(scriptOutput)
				if err != nil {
					return err
				}
				defer f.Close()
				return scriptAndWrite(f, c, dialect)
			}
			return scriptAndWrite(w, c, dialect)
		},
	}
	scriptCmd.Flags().StringVar(&dialectName, "dialect", "python", "Back-end script dialect: python, octave")
	scriptCmd.Flags().StringVar(&scriptOutput, "output", "", "Output file path (default stdout)")

	// batch command
	var numWorkers int

	batchCmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Solve every *.json netlist in a directory with a bounded pool of workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(args[0], numWorkers, verbose)
		},
	}
	batchCmd.Flags().IntVar(&numWorkers, "workers", 0, "Number of concurrent files (0 = NumCPU)")
	batchCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Accepted for parity with solve; batch prints only each file's OK/FAIL verdict")

	// check command
	checkCmd := &cobra.Command{
		Use:   "check [netlist.json]",
		Short: "Validate a netlist and confirm every result request solves without error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := readNetlist(args[0])
			if err != nil {
				return err
			}
			return runCheck(os.Stdout, c)
		},
	}

	rootCmd.AddCommand(solveCmd, scriptCmd, batchCmd, checkCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func readNetlist(path string) (*circuit.Circuit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := netlist.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// solveAndPrint runs every result request in c sequentially and prints
// each one's human form, one outcome after another so a single failing
// request never prevents the rest from printing.
func solveAndPrint(w *os.File, c *circuit.Circuit, verbose bool) error {
	outcomes := pipeline.RunAll(c)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			if verbose {
				fmt.Fprintf(os.Stderr, "%s: %v\n", o.Name, o.Err)
			}
			continue
		}
		fmt.Fprintf(w, "# %s\n", o.Name)
		m, refs := render.Build(o.Solution)
		if err := render.Human(m, refs, w, o.Solution.Names); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d result requests failed", failed, len(outcomes))
	}
	return nil
}

func scriptAndWrite(w *os.File, c *circuit.Circuit, dialect render.ScriptDialect) error {
	outcomes := pipeline.RunAll(c)
	for _, o := range outcomes {
		if o.Err != nil {
			continue // a failing result is omitted from the script, not fatal to it
		}
		fmt.Fprintf(w, "%s%s\n", dialect.CommentPrefix, o.Name)
		m, refs := render.Build(o.Solution)
		if err := render.Script(m, refs, w, dialect, o.Solution.Names, o.Solution.Defaults); err != nil {
			return err
		}
	}
	return nil
}

func scriptDialect(name string) (render.ScriptDialect, error) {
	switch strings.ToLower(name) {
	case "python":
		return render.ScriptDialect{
			CommentPrefix: "# ",
			Assign:        func(n, e string) string { return fmt.Sprintf("%s = %s", n, e) },
			LTI:           func(n, num, den string) string { return fmt.Sprintf("%s = signal.lti(%s, %s)", n, num, den) },
			Prelude:       "import numpy as np\nfrom scipy import signal\n\n",
			Boilerplate:   "\nf = np.logspace(0, 9, 500)\nw = 2 * np.pi * f\nt = np.linspace(0, 1e-3, 500)\n",
		}, nil
	case "octave":
		return render.ScriptDialect{
			CommentPrefix: "% ",
			Assign:        func(n, e string) string { return fmt.Sprintf("%s = %s;", n, e) },
			LTI:           func(n, num, den string) string { return fmt.Sprintf("%s = tf(%s, %s);", n, num, den) },
			Prelude:       "pkg load control;\n\n",
			Boilerplate:   "\nf = logspace(0, 9, 500);\nw = 2 * pi * f;\nt = linspace(0, 1e-3, 500);\n",
		}, nil
	default:
		return render.ScriptDialect{}, fmt.Errorf("unknown --dialect %q: use python or octave", name)
	}
}

// runCheck validates and solves every result request, reporting pass/fail
// per request without stopping at the first failure.
func runCheck(w *os.File, c *circuit.Circuit) error {
	outcomes := pipeline.RunAll(c)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(w, "  FAIL %s: %v\n", o.Name, o.Err)
			continue
		}
		fmt.Fprintf(w, "  OK   %s (%d pair(s))\n", o.Name, len(o.Solution.Pairs))
	}
	fmt.Fprintf(w, "\n%d of %d result requests solved\n", len(outcomes)-failed, len(outcomes))
	if failed > 0 {
		return fmt.Errorf("%d result requests failed validation", failed)
	}
	return nil
}

// batchOutcome is one file's solveAndPrint verdict, collected by a worker
// and reported by the main goroutine once every file has run: workers push
// results, one goroutine owns the printing.
type batchOutcome struct {
	path string
	err  error
}

// runBatch solves every *.json file in dir concurrently with numWorkers
// workers (NumCPU when numWorkers <= 0, never more than the file count).
// Concurrency is between independent netlists only; within one file
// pipeline.RunAll still processes results sequentially.
func runBatch(dir string, numWorkers int, verbose bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return fmt.Errorf("no *.json files found in %s", dir)
	}

	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(paths) {
		numWorkers = len(paths)
	}

	jobs := make(chan string, len(paths))
	for _, p := range paths {
		jobs <- p
	}
	close(jobs)

	results := make(chan batchOutcome, len(paths))
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				c, err := readNetlist(path)
				if err == nil {
					var sb strings.Builder
					err = solveToBuilder(&sb, c, verbose)
				}
				results <- batchOutcome{path: path, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	failed := 0
	for r := range results {
		if r.err != nil {
			failed++
			fmt.Printf("  FAIL %s: %v\n", r.path, r.err)
			continue
		}
		fmt.Printf("  OK   %s\n", r.path)
	}
	fmt.Printf("\n%d of %d netlists solved cleanly\n", len(paths)-failed, len(paths))
	if failed > 0 {
		return fmt.Errorf("%d netlists failed", failed)
	}
	return nil
}

// solveToBuilder runs solveAndPrint's logic against an in-memory buffer so
// a batch worker can fully render a netlist without touching shared
// stdout — only the final pass/fail verdict crosses back to the main
// goroutine.
func solveToBuilder(sb *strings.Builder, c *circuit.Circuit, verbose bool) error {
	outcomes := pipeline.RunAll(c)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			if verbose {
				fmt.Fprintf(sb, "%s: %v\n", o.Name, o.Err)
			}
			continue
		}
		m, refs := render.Build(o.Solution)
		if err := render.Human(m, refs, sb, o.Solution.Names); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d result requests failed", failed, len(outcomes))
	}
	return nil
}
