package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/gomigrator/internal/config"
	"github.com/dbsmedya/gomigrator/internal/graph"
	"github.com/dbsmedya/gomigrator/internal/legacy"
	"github.com/dbsmedya/gomigrator/internal/types"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

var planTypes []string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the history migration plan",
	Long: `Plan displays the order in which history entity types are migrated,
derived from the foreign keys between the legacy history tables.

The plan shows:
  - Stages (types of one stage run concurrently)
  - Detected dependencies with the referencing legacy column
  - Legacy tables read per type
  - Processing configuration

Example:
  gomigrator plan --config gomigrator.yaml --types process_instance,variable`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringSliceVarP(&planTypes, "types", "t", nil,
		"History entity types to include (default: migration.entity_types or all)")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ts, err := resolveTypes(planTypes, cfg.Migration.EntityTypes)
	if err != nil {
		return err
	}
	g, err := planGraph(ts)
	if err != nil {
		return err
	}
	return renderPlan(g, cfg)
}

// planGraph returns the dependency graph restricted to ts.
func planGraph(ts []types.EntityType) (*graph.Graph, error) {
	g, err := graph.BuildDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}
	if len(ts) == 0 {
		return g, nil
	}
	for _, t := range ts {
		if !t.IsHistory() {
			return nil, fmt.Errorf("%s is not a history entity type", t)
		}
	}
	return g.Subgraph(ts), nil
}

func renderPlan(g *graph.Graph, cfg *config.Config) error {
	stages, err := g.Stages()
	if err != nil {
		return fmt.Errorf("failed to compute stages: %w", err)
	}

	summaryLines := []string{
		"[ Processing ]",
		strings.Repeat("-", 14),
		fmt.Sprintf("Page Size:       %d", cfg.Processing.PageSize),
		fmt.Sprintf("Sleep:           %.1fs", cfg.Processing.SleepSeconds),
		fmt.Sprintf("Partition:       %d", cfg.Processing.PartitionID),
		"",
		"[ Ledger ]",
		strings.Repeat("-", 10),
		fmt.Sprintf("Driver:          %s", cfg.Ledger.Driver),
		fmt.Sprintf("Table:           %s", cfg.Ledger.Table),
	}
	if len(cfg.Migration.DisabledInterceptors) > 0 {
		summaryLines = append(summaryLines, "",
			"[ Disabled Interceptors ]",
			strings.Repeat("-", 25),
			strings.Join(cfg.Migration.DisabledInterceptors, ", "))
	}

	printHeader("Migration Plan")
	fmt.Fprintln(outputWriter)
	printSideBySide(stageDiagram(stages), summaryLines, 4)

	fmt.Fprintln(outputWriter)
	printSection("Migration Order (dependencies first)")
	n := 0
	for _, stage := range stages {
		for _, t := range stage {
			n++
			fmt.Fprintf(outputWriter, "  [%d] %s | reads: %s\n", n, t, strings.Join(legacy.Tables(t), ", "))
		}
	}

	fmt.Fprintln(outputWriter)
	printSection("Detected Dependencies")
	edges := g.AllEdges()
	if len(edges) == 0 {
		fmt.Fprintln(outputWriter, "  (none)")
	}
	for _, edge := range edges {
		meta := g.GetEdgeMeta(edge.From, edge.To)
		optional := ""
		if meta.Optional {
			optional = " (optional)"
		}
		fmt.Fprintf(outputWriter, "  • %s → %s FK: %s%s\n", edge.From, edge.To, meta.ForeignKey, optional)
	}
	return nil
}

// stageDiagram draws one box per stage, linked top to bottom.
func stageDiagram(stages [][]types.EntityType) string {
	var lines []string
	for i, stage := range stages {
		names := make([]string, len(stage))
		for j, t := range stage {
			names[j] = t.String()
		}
		title := fmt.Sprintf("Stage %d", i+1)

		width := runewidth.StringWidth(title)
		for _, name := range names {
			if w := runewidth.StringWidth(name); w > width {
				width = w
			}
		}

		if i > 0 {
			lines = append(lines, "       │", "       ▼")
		}
		lines = append(lines, "┌"+strings.Repeat("─", width+2)+"┐")
		lines = append(lines, "│ "+runewidth.FillRight(title, width)+" │")
		lines = append(lines, "├"+strings.Repeat("─", width+2)+"┤")
		for _, name := range names {
			lines = append(lines, "│ "+runewidth.FillRight(name, width)+" │")
		}
		lines = append(lines, "└"+strings.Repeat("─", width+2)+"┘")
	}
	return strings.Join(lines, "\n")
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := len(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("-", len(title)+2))
}

// printSideBySide prints two blocks of text side by side
// padding is the minimum spaces between the two columns
func printSideBySide(leftContent string, rightLines []string, padding int) {
	leftLines := strings.Split(strings.TrimRight(leftContent, "\n"), "\n")

	leftWidth := 0
	for _, line := range leftLines {
		if w := runewidth.StringWidth(line); w > leftWidth {
			leftWidth = w
		}
	}

	maxHeight := len(leftLines)
	if len(rightLines) > maxHeight {
		maxHeight = len(rightLines)
	}

	for i := 0; i < maxHeight; i++ {
		leftPart, rightPart := "", ""
		if i < len(leftLines) {
			leftPart = leftLines[i]
		}
		if i < len(rightLines) {
			rightPart = rightLines[i]
		}

		fmt.Fprint(outputWriter, leftPart)
		if rightPart == "" {
			fmt.Fprintln(outputWriter)
			continue
		}
		spacesNeeded := leftWidth - runewidth.StringWidth(leftPart) + padding
		fmt.Fprint(outputWriter, strings.Repeat(" ", spacesNeeded))
		fmt.Fprintln(outputWriter, rightPart)
	}
}
