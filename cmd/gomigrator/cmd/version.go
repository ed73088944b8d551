package cmd

import (
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gomigrator/internal/transplant"
	"github.com/dbsmedya/gomigrator/internal/types"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the gomigrator build together with the entity types it migrates
and the variable that correlates target instances with legacy instances.`,
	Run: runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) {
	names := make([]string, 0, len(types.HistoryTypes))
	for _, t := range types.HistoryTypes {
		names = append(names, t.String())
	}

	cmd.Printf("gomigrator version %s\n", Version)
	cmd.Printf("  Commit: %s\n", Commit)
	cmd.Printf("  Go version: %s\n", runtime.Version())
	cmd.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	cmd.Printf("  History entities: %s\n", strings.Join(names, ", "))
	cmd.Printf("  Runtime correlation variable: %s\n", transplant.LegacyIDVariable)
}
