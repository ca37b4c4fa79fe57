package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "zib",
		Short: "Adaptive feed reader backend with per-source refresh intervals",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(runDaemonCmd())
	root.AddCommand(addCmd())
	root.AddCommand(refreshCmd())
	root.AddCommand(sourcesCmd())
	root.AddCommand(statsCmd())
	root.AddCommand(filterCmd())
	root.AddCommand(similarCmd())
	root.AddCommand(embedCmd())

	return root
}

func runDaemonCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func addCmd() *cobra.Command {
	var skipAge bool

	cmd := &cobra.Command{
		Use:   "add <feed-url>",
		Short: "Subscribe to a feed and fetch it once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(args[0], skipAge)
		},
	}

	cmd.Flags().BoolVar(&skipAge, "skip-age-filter", false, "import items regardless of age")
	return cmd
}

func refreshCmd() *cobra.Command {
	var (
		sourceID int64
		skipAge  bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch all due sources once (or one source with --source)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRefresh(sourceID, skipAge)
		},
	}

	cmd.Flags().Int64Var(&sourceID, "source", 0, "refresh only this source id")
	cmd.Flags().BoolVar(&skipAge, "skip-age-filter", false, "import items regardless of age (single source only)")
	return cmd
}

func sourcesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List subscribed sources with their effective refresh intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func statsCmd() *cobra.Command {
	var recompute bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-source statistics and computed intervals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(recompute)
		},
	}

	cmd.Flags().BoolVar(&recompute, "recompute", false, "recompute statistics before showing them")
	return cmd
}

func filterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Work with suppression filters",
	}

	test := &cobra.Command{
		Use:   "test <rule> [text]",
		Short: "Validate a rule and optionally match it against text",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 2 {
				text = args[1]
			}
			return runFilterTest(args[0], text)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilterList()
		},
	}

	cmd.AddCommand(test)
	cmd.AddCommand(list)
	return cmd
}

func similarCmd() *cobra.Command {
	var (
		windowHours int
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Group recent items that cover the same story",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(windowHours, limit)
		},
	}

	cmd.Flags().IntVar(&windowHours, "window", 0, "publication window in hours (default: from config)")
	cmd.Flags().IntVar(&limit, "limit", 200, "max recent items to consider")
	return cmd
}

func embedCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Run the embedding job once (or purge stored vectors)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbed(purge)
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "delete all stored vectors instead of embedding")
	return cmd
}
