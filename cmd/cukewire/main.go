package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/cukewire/pkg/config"
	"github.com/ormasoftchile/cukewire/pkg/console"
	"github.com/ormasoftchile/cukewire/pkg/processor"
	"github.com/ormasoftchile/cukewire/pkg/stepfile"
	"github.com/ormasoftchile/cukewire/pkg/wire"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

var (
	configFile string
	stepPaths  []string
	logLevel   string

	cfg    *config.Config
	logger *log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cukewire",
	Short: "Serve step definitions over the Cucumber wire protocol",
	Long: "cukewire loads step definitions from *.steps.yaml files and answers " +
		"list_step_definitions and invoke requests, one per line.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cmd.Context(), config.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	logger = log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		Level:           cfg.Level(),
		ReportTimestamp: cfg.Log.Timestamps,
		Prefix:          "cukewire",
	})
	return nil
}

// newProcessor loads the configured step files.
func newProcessor(ctx context.Context) (*processor.Processor, error) {
	logger.Debug("loading step definitions", "paths", cfg.Steps)
	proc, err := processor.NewFromLoader(ctx, stepfile.Loader{Paths: cfg.Steps}, processor.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.Info("step definitions loaded", "count", proc.Catalog().Len())
	return proc, nil
}

// --- serve ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer wire requests read line by line from stdin",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	proc, err := newProcessor(cmd.Context())
	if err != nil {
		return err
	}
	err = wire.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), proc)
	if err != nil && cmd.Context().Err() == nil {
		return err
	}
	logger.Info("serve stopped")
	return nil
}

// --- list ---

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded step definitions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func runList(cmd *cobra.Command, _ []string) error {
	proc, err := newProcessor(cmd.Context())
	if err != nil {
		return err
	}
	defs := proc.Catalog().Definitions()
	if listJSON {
		fmt.Fprintln(cmd.OutOrStdout(), wire.Format(defs))
		return nil
	}
	rows := make([][]string, 0, len(defs))
	for _, d := range defs {
		rows = append(rows, []string{d.ID(), d.Name(), d.Pattern(), paramList(d.ParamTypes())})
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "PATTERN", "PARAMS"}, rows))
	return nil
}

// --- match ---

var matchCmd = &cobra.Command{
	Use:   "match <step text>",
	Short: "Show step definitions matching a line of step text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMatch,
}

func runMatch(cmd *cobra.Command, args []string) error {
	proc, err := newProcessor(cmd.Context())
	if err != nil {
		return err
	}
	text := strings.Join(args, " ")
	matches := proc.Catalog().Match(text)
	if len(matches) == 0 {
		return fmt.Errorf("no step definition matches %q", text)
	}
	rows := make([][]string, 0, len(matches))
	for _, m := range matches {
		rows = append(rows, []string{m.Definition.ID(), m.Definition.Name(), fmt.Sprintf("%q", m.Args)})
	}
	fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"ID", "NAME", "ARGS"}, rows))
	return nil
}

// --- validate ---

var validateCmd = &cobra.Command{
	Use:   "validate <file.steps.yaml>...",
	Short: "Validate step files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	failed := 0
	for _, path := range args {
		sf, errs := stepfile.ValidateFile(path)
		var errors, warnings []*stepfile.ValidationError
		for _, e := range errs {
			if e.Severity == "warning" {
				warnings = append(warnings, e)
			} else {
				errors = append(errors, e)
			}
		}
		for _, w := range warnings {
			fmt.Fprintf(errOut, "  ⚠ [%s] %s\n", w.Phase, w.Message)
			if w.Path != "" {
				fmt.Fprintf(errOut, "    at: %s\n", w.Path)
			}
		}
		if len(errors) > 0 {
			failed++
			fmt.Fprintf(errOut, "%s: validation failed: %d error(s)\n\n", path, len(errors))
			for i, e := range errors {
				fmt.Fprintf(errOut, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
				if e.Path != "" {
					fmt.Fprintf(errOut, "     at: %s\n", e.Path)
				}
			}
			continue
		}
		fmt.Fprintf(out, "✓ %s is valid (%d steps)\n", sf.Meta.Name, len(sf.Steps))
	}
	if failed > 0 {
		return fmt.Errorf("validation failed for %d file(s)", failed)
	}
	return nil
}

// --- schema ---

var schemaOut string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON Schema for step files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := stepfile.GenerateJSONSchema()
		if err != nil {
			return err
		}
		if schemaOut == "" {
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		if err := os.WriteFile(schemaOut, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schema written to %s\n", schemaOut)
		return nil
	},
}

// --- console ---

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Type wire requests interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		proc, err := newProcessor(cmd.Context())
		if err != nil {
			return err
		}
		c := console.New(proc,
			console.WithOutput(cmd.OutOrStdout()),
			console.WithHistoryFile(cfg.Console.HistoryFile),
		)
		return c.Run(cmd.Context())
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cukewire %s (commit: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringSliceVar(&stepPaths, "steps", nil, "Step files or directories (repeatable, comma separated)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print the list_step_definitions response instead of a table")
	schemaCmd.Flags().StringVar(&schemaOut, "out", "", "Write the schema to a file instead of stdout")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(versionCmd)
}
