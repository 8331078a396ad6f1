// Package cli implements the phpcov command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/phpcov/internal/config"
	"github.com/user/phpcov/internal/coverage"
)

// Version information
const Version = "0.1.0"

// flagKeys maps command line flags to configuration keys. A flag is bound
// only on the command that defines it.
var flagKeys = map[string]string{
	"verbose":          "verbose",
	"php":              "runner.php",
	"jobs":             "runner.jobs",
	"dump-dir":         "runner.dump_dir",
	"prepend":          "runner.prepend",
	"show-output":      "runner.show_output",
	"driver":           "coverage.driver",
	"path-coverage":    "coverage.path_coverage",
	"cache-dir":        "coverage.cache_dir",
	"text":             "report.text",
	"colors":           "report.colors",
	"show-uncovered":   "report.show_uncovered",
	"summary-only":     "report.summary_only",
	"clover":           "report.clover",
	"cobertura":        "report.cobertura",
	"crap4j":           "report.crap4j",
	"crap4j-threshold": "report.crap4j_threshold",
	"html":             "report.html",
	"xml":              "report.xml",
	"serialized":       "report.serialized",
}

// app is the state the commands share
type app struct {
	fs      afero.Fs
	v       *viper.Viper
	cfg     *config.Config
	cfgFile string
	dir     string
}

// Run executes the CLI with the given arguments
func Run(args []string) error {
	cmd := NewRootCommand(afero.NewOsFs())
	cmd.SetArgs(args)
	return cmd.Execute()
}

// NewRootCommand builds the command tree working on fs
func NewRootCommand(fs afero.Fs) *cobra.Command {
	a := &app{fs: fs, v: config.New(fs)}

	root := &cobra.Command{
		Use:   "phpcov",
		Short: "Fast PHP test coverage tool",
		Long: `phpcov runs PHPUnit test files in parallel PHP processes, collects the
coverage Xdebug, PCOV or PHPDBG report for each of them and renders the
merged result as text, Clover, Cobertura, Crap4j, HTML or XML.

Settings are read from phpcov.yaml in the project directory, PHPCOV_*
environment variables and the flags below, in increasing priority.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is phpcov.yaml in the project directory)")
	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", "", "project directory (default is the current directory)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.runCommand(),
		a.mergeCommand(),
		a.reportCommand(),
		a.collectCommand(),
		a.initCommand(),
		versionCommand(),
	)
	return root
}

// setup binds the flags of the executing command, loads the configuration
// and installs the logger
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	if a.dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		a.dir = wd
	}
	dir, err := filepath.Abs(a.dir)
	if err != nil {
		return err
	}
	a.dir = dir
	file := a.cfgFile
	if file != "" {
		file = a.path(file)
	}

	cfg, err := config.Load(a.v, file, a.dir)
	if err != nil {
		return err
	}
	a.cfg = cfg
	setupLogging(cmd.ErrOrStderr(), cfg.Verbose)
	if used := a.v.ConfigFileUsed(); used != "" {
		slog.Debug("config loaded", "file", used)
	}
	return nil
}

func setupLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// path resolves p against the project directory
func (a *app) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.dir, p)
}

// facade builds a facade over the configured sources. d may be nil for
// facades that only merge and report.
func (a *app) facade(d coverage.Driver, opts ...coverage.Option) (*coverage.CodeCoverage, error) {
	filter, err := a.cfg.Source.Filter(a.fs, a.dir)
	if err != nil {
		return nil, err
	}
	return a.facadeOver(filter, d, opts...)
}

// facadeOver builds a configured facade over filter
func (a *app) facadeOver(filter *coverage.Filter, d coverage.Driver, opts ...coverage.Option) (*coverage.CodeCoverage, error) {
	settings := a.cfg.Coverage
	settings.CacheDir = a.path(settings.CacheDir)
	cc := coverage.New(d, filter, append(settings.Options(), opts...)...)
	if err := settings.Apply(cc); err != nil {
		return nil, err
	}
	return cc, nil
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "phpcov version %s\n", Version)
			return nil
		},
	}
}

func (a *app) initCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a phpcov.yaml with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := filepath.Join(a.dir, "phpcov.yaml")
			if ok, _ := afero.Exists(a.fs, target); ok && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}
			if err := config.Write(a.fs, target, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
