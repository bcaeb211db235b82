package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/harvestlab/harvest/internal/config"
	"github.com/harvestlab/harvest/internal/query"
)

// NewRootCommand builds the harvest CLI: one root command with a
// subcommand per operation. Each subcommand registers only its own
// flags; the config layer binds whatever is present.
func NewRootCommand(version, build, programName string) *cobra.Command {
	root := &cobra.Command{
		Use:     programName,
		Short:   "Source-tree harvester",
		Long:    "harvest turns a source tree into a single snapshot document of symbol-level chunks, and serves it over HTTP and MCP.",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging()
		},
		SilenceUsage: true,
	}
	root.SetVersionTemplate(`{{.Version}}
`)

	root.AddCommand(
		newReapCommand(),
		newQueryCommand(),
		newSowCommand(),
		newWatchCommand(),
		newServeCommand(version),
		newMCPCommand(version),
	)
	return root
}

// loadAndValidate resolves settings from flags, env, .env, and defaults,
// and rejects contradictory configuration before any I/O.
func loadAndValidate(flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := config.LoadSettingsWithFlags(flags)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func newReapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reap <dir-or-github-url>",
		Short: "Harvest a source tree into a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadAndValidate(cmd.Flags())
			if err != nil {
				return err
			}
			return RunReap(cmd.Context(), settings, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringP("out", "o", "", "Output snapshot path (default codebase.harvest.json in the working directory)")
	flags.String("prev", "", "Previous snapshot for incremental reuse")
	flags.Int64("max-bytes", 0, "Per-file size ceiling in bytes")
	flags.Int("max-files", 0, "Stop enumerating after this many files")
	flags.Bool("no-content", false, "Record file metadata only, never read content")
	flags.StringSlice("only-ext", nil, "Allow-list of extensions (comma-separated)")
	flags.StringSlice("skip-ext", nil, "Extra extensions to skip (comma-separated)")
	flags.StringSlice("skip-file", nil, "Extra exact filenames to skip")
	flags.StringSlice("skip-folder", nil, "Extra directory names to skip")
	return cmd
}

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <snapshot-or-dir>",
		Short: "Filter a snapshot's files or chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := queryOptionsFromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			return RunQuery(args[0], opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.String("entity", "", "Entity to filter: files or chunks (default chunks)")
	flags.String("language", "", "Filter by language tag")
	flags.String("kind", "", "Filter chunks by kind")
	flags.String("path-glob", "", "Glob applied to file paths (** spans separators)")
	flags.String("path-regex", "", "Regular expression applied to file paths")
	flags.String("symbol-regex", "", "Regular expression applied to chunk symbols")
	flags.Bool("public", false, "Filter chunks by public visibility")
	flags.Int("min-lines", 0, "Minimum chunk span length (inclusive)")
	flags.Int("max-lines", 0, "Maximum chunk span length (inclusive)")
	flags.String("export-named", "", "Match files whose named exports contain this symbol")
	flags.Bool("has-default-export", false, "Match files with a default export")
	flags.String("fields", "", "Comma-separated field projection, output as TSV")
	return cmd
}

// queryOptionsFromFlags assembles query options straight from the flag
// set. These are per-invocation values, not configuration, so they do
// not pass through viper.
func queryOptionsFromFlags(flags *pflag.FlagSet) (query.Options, error) {
	var opts query.Options
	var err error
	if opts.Entity, err = flags.GetString("entity"); err != nil {
		return opts, err
	}
	opts.Language, _ = flags.GetString("language")
	opts.Kind, _ = flags.GetString("kind")
	opts.PathGlob, _ = flags.GetString("path-glob")
	opts.PathRegex, _ = flags.GetString("path-regex")
	opts.SymbolRegex, _ = flags.GetString("symbol-regex")
	opts.MinLines, _ = flags.GetInt("min-lines")
	opts.MaxLines, _ = flags.GetInt("max-lines")
	opts.ExportNamed, _ = flags.GetString("export-named")
	opts.HasDefaultExport, _ = flags.GetBool("has-default-export")

	// --public is tri-state: absent means no visibility constraint.
	if flags.Changed("public") {
		public, _ := flags.GetBool("public")
		opts.Public = &public
	}
	if fields, _ := flags.GetString("fields"); fields != "" {
		opts.Fields = splitFields(fields)
	}
	return opts, nil
}

func newSowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sow <snapshot-or-dir>",
		Short: "Generate source artifacts from a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reactOut, err := cmd.Flags().GetString("react")
			if err != nil {
				return err
			}
			return RunSow(args[0], reactOut)
		},
	}

	cmd.Flags().String("react", "", "Write a React barrel file re-exporting every harvested export")
	_ = cmd.MarkFlagRequired("react")
	return cmd
}

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a tree and keep its snapshot current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadAndValidate(cmd.Flags())
			if err != nil {
				return err
			}
			return RunWatch(cmd.Context(), settings, args[0])
		},
	}

	flags := cmd.Flags()
	flags.StringP("out", "o", "", "Output snapshot path (default codebase.harvest.json in the working directory)")
	flags.Duration("poll", 0, "Poll interval between scans")
	flags.Duration("debounce", 0, "Quiet period after the last change before a flush")
	flags.StringSlice("include-ext", nil, "Only react to these extensions (comma-separated)")
	flags.StringSlice("exclude-ext", nil, "Ignore changes to these extensions")
	return cmd
}

func newServeCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve <snapshot-or-dir>",
		Short: "Serve a snapshot over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadAndValidate(cmd.Flags())
			if err != nil {
				return err
			}
			return RunServe(cmd.Context(), settings, args[0], version)
		},
	}

	registerServeFlags(cmd.Flags())
	return cmd
}

func newMCPCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp <snapshot-or-dir>",
		Short: "Serve a snapshot's tools over stdio MCP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadAndValidate(cmd.Flags())
			if err != nil {
				return err
			}
			return RunMCP(cmd.Context(), settings, args[0], version, nil)
		},
	}

	cmd.Flags().Int("max-results", 0, "Search result cap")
	return cmd
}

// registerServeFlags registers the HTTP server surface; auth flags
// mirror the config keys.
func registerServeFlags(flags *pflag.FlagSet) {
	flags.StringP("host", "H", "", "Bind host")
	flags.IntP("port", "p", 0, "Bind port")
	flags.Int("max-results", 0, "Search result cap")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")
}
