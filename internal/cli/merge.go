package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/user/phpcov/internal/coverage"
	"github.com/user/phpcov/internal/driver"
	"github.com/user/phpcov/internal/report/serialized"
	"github.com/user/phpcov/internal/target"
)

// pathMap rewrites file prefixes, e.g. from a CI container to the checkout
type pathMap struct {
	from, to string
}

func parseMaps(specs []string) ([]pathMap, error) {
	maps := make([]pathMap, 0, len(specs))
	for _, s := range specs {
		from, to, ok := strings.Cut(s, "=")
		if !ok || from == "" {
			return nil, fmt.Errorf("invalid --map %q, want old=new", s)
		}
		maps = append(maps, pathMap{from: from, to: to})
	}
	return maps, nil
}

// remap renames the files of cc matching a map and includes the renamed
// files in its filter
func remap(cc *coverage.CodeCoverage, maps []pathMap) error {
	if len(maps) == 0 {
		return nil
	}
	data, err := cc.Data(true)
	if err != nil {
		return err
	}
	for _, file := range data.CoveredFiles() {
		for _, m := range maps {
			rest, ok := strings.CutPrefix(file, m.from)
			if !ok {
				continue
			}
			renamed := m.to + rest
			data = data.RenameFile(file, renamed)
			cc.Filter().IncludeFile(renamed)
			slog.Debug("file renamed", "from", file, "to", renamed)
			break
		}
	}
	cc.SetData(data)
	return nil
}

// snapshotRef is one snapshot handed to load
type snapshotRef struct {
	path    string
	id      string
	skipped bool
}

// load merges the snapshots at paths into one facade over the configured
// sources. A snapshot whose id was merged before is skipped.
func (a *app) load(paths []string, maps []pathMap) (*coverage.CodeCoverage, []snapshotRef, error) {
	cc, err := a.facade(nil)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[string]bool, len(paths))
	refs := make([]snapshotRef, 0, len(paths))
	for _, p := range paths {
		snap, err := serialized.Decode(a.fs, a.path(p))
		if err != nil {
			return nil, nil, err
		}
		ref := snapshotRef{path: p, id: snap.ID, skipped: seen[snap.ID]}
		refs = append(refs, ref)
		if ref.skipped {
			slog.Warn("snapshot already merged", "file", p, "id", snap.ID)
			continue
		}
		seen[snap.ID] = true

		s := snap.Facade(a.fs)
		if err := remap(s, maps); err != nil {
			return nil, nil, err
		}
		cc.Merge(s)
	}
	return cc, refs, nil
}

func (a *app) mergeCommand() *cobra.Command {
	var mapSpecs []string
	cmd := &cobra.Command{
		Use:   "merge snapshot...",
		Short: "Merge snapshots written with --serialized and write the reports",
		Example: `  phpcov merge build/unit.cov build/integration.cov --clover build/clover.xml
  phpcov merge ci.cov --map /builds/app=/home/me/app --serialized all.cov`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maps, err := parseMaps(mapSpecs)
			if err != nil {
				return err
			}
			cc, refs, err := a.load(args, maps)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			merged := 0
			for _, ref := range refs {
				if ref.skipped {
					fmt.Fprintf(out, "  %s %s (skipped, already merged)\n", ref.id, ref.path)
					continue
				}
				merged++
				fmt.Fprintf(out, "  %s %s\n", ref.id, ref.path)
			}
			fmt.Fprintf(out, "Merged %d of %d snapshots (%d tests)\n", merged, len(refs), cc.Tests().Len())
			_, err = a.writeReports(cmd.OutOrStdout(), cc, buildInfo(""))
			return err
		},
	}
	cmd.Flags().StringArrayVar(&mapSpecs, "map", nil, "rewrite file paths starting with old to new (old=new, repeatable)")
	reportFlags(cmd)
	return cmd
}

func (a *app) reportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report snapshot",
		Short: "Write the reports of one snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, _, err := a.load(args, nil)
			if err != nil {
				return err
			}
			_, err = a.writeReports(cmd.OutOrStdout(), cc, buildInfo(""))
			return err
		},
	}
	reportFlags(cmd)
	return cmd
}

func (a *app) collectCommand() *cobra.Command {
	var (
		id      string
		status  string
		size    string
		covers  []string
		uses    []string
		output  string
		elapsed time.Duration
	)
	cmd := &cobra.Command{
		Use:   "collect dump-dir",
		Short: "Add the coverage PHP processes dumped into dump-dir to a snapshot",
		Long: `Read the payloads that processes started with phpcov's prepend script
dumped into dump-dir, record them for one test and add them to the
snapshot at --output, creating it when needed. The directory must hold the
runtime.json the prepend script writes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return coverage.ErrTestIDMissing
			}
			if output == "" {
				output = a.cfg.Report.Serialized
			}
			if output == "" {
				return errors.New("no snapshot to write: set --output or report.serialized")
			}
			targets, err := parseTargets(covers, uses)
			if err != nil {
				return err
			}
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			sz, err := parseSize(size)
			if err != nil {
				return err
			}

			dir := a.path(args[0])
			engines, err := driver.OpenDumpEngines(a.fs, dir)
			if err != nil {
				return err
			}
			d, err := driver.ByName(a.cfg.Coverage.Driver, engines)
			if err != nil {
				return err
			}
			cc, err := a.facade(d)
			if err != nil {
				return err
			}
			if ok, _ := afero.Exists(a.fs, a.path(output)); ok {
				prev, err := serialized.Read(a.fs, a.path(output), a.fs)
				if err != nil {
					return err
				}
				cc.Merge(prev)
			}

			raw, err := d.Stop()
			if err != nil {
				return err
			}
			scope, err := cc.ScopeFor(targets, raw)
			if err != nil {
				return err
			}
			if err := cc.Append(raw, id, true, scope); err != nil {
				return err
			}
			if !cc.UpdateTest(id, coverage.TestInfo{Size: sz, Status: st, Duration: elapsed}) {
				slog.Warn("test contributed no coverage", "id", id)
			}
			if err := (serialized.Writer{}).Write(a.fs, cc, a.path(output)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collected %d files for %s into %s\n", len(raw.LineCoverage()), id, output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&id, "id", "", "id of the test the coverage belongs to")
	f.StringVar(&status, "status", "success", "outcome of the test (success, failure, error, skipped, ...)")
	f.StringVar(&size, "size", string(coverage.SizeUnknown), "size of the test: small, medium, large or unknown")
	f.DurationVar(&elapsed, "time", 0, "duration of the test")
	f.StringArrayVar(&covers, "covers", nil, "unit the test covers (repeatable)")
	f.StringArrayVar(&uses, "uses", nil, "unit the test uses (repeatable)")
	f.StringVarP(&output, "output", "o", "", "snapshot to add to (default is report.serialized)")
	f.String("driver", "auto", "coverage engine: auto, xdebug, pcov or phpdbg")
	return cmd
}

func parseTargets(covers, uses []string) (target.Set, error) {
	var set target.Set
	for _, c := range covers {
		t, err := target.Parse(c)
		if err != nil {
			return target.Set{}, err
		}
		set.Covers = append(set.Covers, t)
	}
	for _, u := range uses {
		t, err := target.Parse(u)
		if err != nil {
			return target.Set{}, err
		}
		set.Uses = append(set.Uses, t)
	}
	return set, nil
}

func parseSize(name string) (coverage.TestSize, error) {
	switch s := coverage.TestSize(name); s {
	case coverage.SizeSmall, coverage.SizeMedium, coverage.SizeLarge, coverage.SizeUnknown:
		return s, nil
	}
	return coverage.SizeUnknown, fmt.Errorf("unknown test size %q, want small, medium, large or unknown", name)
}

func parseStatus(name string) (coverage.TestStatus, error) {
	for s := coverage.StatusUnknown; s <= coverage.StatusWarning; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return coverage.StatusUnknown, fmt.Errorf("unknown test status %q", name)
}
