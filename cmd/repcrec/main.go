// Command repcrec runs a replicated concurrency control and recovery engine
// over an operation stream read from a file or stdin, printing one result
// line per operation and a table for dump().
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kartikbazzad/repcrec"
	"github.com/kartikbazzad/repcrec/audit"
	"github.com/kartikbazzad/repcrec/config"
	"github.com/kartikbazzad/repcrec/dispatch"
	"github.com/kartikbazzad/repcrec/parser"
	"github.com/kartikbazzad/repcrec/wire"
	"github.com/spf13/cobra"
)

var (
	configPath string
	auditPath  string
)

var rootCmd = &cobra.Command{
	Use:   "repcrec [input-file]",
	Short: "Replicated concurrency control and recovery engine",
	Args:  cobra.MaximumNArgs(1),
	RunE:  run,
}

func main() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a JSON topology override")
	rootCmd.Flags().StringVar(&auditPath, "audit-log", "", "path to append a JSON audit trail (default: none)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	topo, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading topology config: %w", err)
	}

	var logger *audit.Logger
	if auditPath != "" {
		logger, err = audit.Open(auditPath)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()
	}

	var input io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input file: %w", err)
		}
		defer f.Close()
		input = f
	}

	mgr := repcrec.NewManager(topo, logger)
	stdout := bufio.NewWriter(os.Stdout)
	defer stdout.Flush()

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		line := scanner.Text()

		if _, isMarker := parser.IsTestMarker(line); isMarker {
			mgr = repcrec.NewManager(topo, logger)
			continue
		}

		op, ok, err := parser.Parse(line)
		if err != nil {
			log.Printf("%v", err)
			continue
		}
		if !ok {
			continue
		}

		result := dispatch.Dispatch(mgr, op)
		switch result.Kind {
		case wire.DumpReport:
			writeDumpTable(stdout, mgr.DumpColumns(), result.Values)
		case wire.Ignored:
			if result.Message != "" {
				log.Printf("%v", result.Message)
			}
		default:
			if result.Message != "" {
				fmt.Fprintln(stdout, result.Message)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// writeDumpTable renders a dump() result as a fixed-width table: site id,
// UP/DOWN, then one column per variable present at any up site, with blank
// cells for down sites or variables absent from a site.
func writeDumpTable(w io.Writer, columns []string, rows []wire.SiteDump) {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}

	type line struct {
		site string
		up   string
		vals []string
	}
	var lines []line
	for _, row := range rows {
		vals := make([]string, len(columns))
		if row.Up {
			byVar := make(map[string]int64, len(row.Vars))
			for _, v := range row.Vars {
				byVar[v.Var] = v.Value
			}
			for i, c := range columns {
				if v, ok := byVar[c]; ok {
					vals[i] = fmt.Sprintf("%d", v)
				}
			}
		}
		for i, v := range vals {
			if len(v) > widths[i] {
				widths[i] = len(v)
			}
		}
		status := "DOWN"
		if row.Up {
			status = "UP"
		}
		lines = append(lines, line{site: fmt.Sprintf("%d", row.SiteID), up: status, vals: vals})
	}

	fmt.Fprintf(w, "%-6s %-6s", "site", "status")
	for i, c := range columns {
		fmt.Fprintf(w, " %-*s", widths[i], c)
	}
	fmt.Fprintln(w)

	for _, l := range lines {
		fmt.Fprintf(w, "%-6s %-6s", l.site, l.up)
		for i, v := range l.vals {
			fmt.Fprintf(w, " %-*s", widths[i], v)
		}
		fmt.Fprintln(w)
	}
}
