package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pe200012/cpupower-gui-qml/internal/planner"
	"github.com/pe200012/cpupower-gui-qml/internal/sysfs"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "cpupowerctl",
		Short:         "Inspect and tune CPU frequency scaling",
		Long:          "cpupowerctl reads CPU scaling state from sysfs and applies changes through the privileged cpupower helper.",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	root.AddCommand(
		newStatusCmd(a),
		newSetCmd(a),
		newProfileCmd(a),
		newHelperCmd(a),
	)
	return root
}

// selectCPUs resolves the --cpus/--all flags. With neither set, fallback
// decides between all available CPUs and an error.
func selectCPUs(a *app, list string, all, fallbackAll bool) ([]int, error) {
	if all {
		return a.reader.Available(), nil
	}
	if strings.TrimSpace(list) != "" {
		cpus, err := sysfs.ParseRangeList(list)
		if err != nil {
			return nil, fmt.Errorf("invalid --cpus: %w", err)
		}
		return cpus, nil
	}
	if fallbackAll {
		return a.reader.Available(), nil
	}
	return nil, fmt.Errorf("select CPUs with --cpus or --all")
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		cpuList string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-CPU scaling state (works without the helper)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cpus := a.reader.Present()
			if strings.TrimSpace(cpuList) != "" {
				var err error
				if cpus, err = sysfs.ParseRangeList(cpuList); err != nil {
					return fmt.Errorf("invalid --cpus: %w", err)
				}
			}

			states := make([]sysfs.CPUState, 0, len(cpus))
			for _, cpu := range cpus {
				states = append(states, a.reader.Snapshot(cpu))
			}

			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(states)
			}

			rows := make([][]string, 0, len(states))
			for _, s := range states {
				rows = append(rows, []string{
					fmt.Sprint(s.CPU),
					yesNo(s.Online),
					mhz(s.CurrentKHz),
					mhz(s.Scaling.MinKHz),
					mhz(s.Scaling.MaxKHz),
					fmt.Sprintf("%s-%s", mhz(s.Hardware.MinKHz), mhz(s.Hardware.MaxKHz)),
					orDash(s.Governor),
					orDash(s.EnergyPreference),
				})
			}
			fmt.Fprintln(a.out, renderTable(
				[]string{"CPU", "Online", "Cur MHz", "Min MHz", "Max MHz", "HW MHz", "Governor", "Energy pref"},
				rows,
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&cpuList, "cpus", "", "CPU list to show, e.g. 0-3,6 (default: all present)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var (
		cpuList  string
		all      bool
		minMHz   int
		maxMHz   int
		governor string
		pref     string
		online   bool
		offline  bool
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change frequency limits, governor, energy preference or online state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if online && offline {
				return fmt.Errorf("--online and --offline are mutually exclusive")
			}
			if minMHz < 0 || maxMHz < 0 {
				return fmt.Errorf("frequencies must not be negative")
			}
			if minMHz > 0 && maxMHz > 0 && minMHz > maxMHz {
				return fmt.Errorf("--min %d is above --max %d", minMHz, maxMHz)
			}

			change := planner.Change{
				MinKHz:           minMHz * 1000,
				MaxKHz:           maxMHz * 1000,
				Governor:         governor,
				EnergyPreference: pref,
			}
			if online || offline {
				change.Online = &online
			}
			if change.Empty() {
				return fmt.Errorf("nothing to change; pass at least one of --min, --max, --governor, --pref, --online, --offline")
			}

			cpus, err := selectCPUs(a, cpuList, all, a.settings.AllCPUsDefault)
			if err != nil {
				return err
			}
			ops := planner.ForChange(cpus, change, a.reader)
			if pref != "" && !a.settings.EnergyPrefPerCPU {
				// The energy preference is shared by every CPU unless configured per CPU.
				others := slices.DeleteFunc(a.reader.Available(), func(cpu int) bool {
					return slices.Contains(cpus, cpu)
				})
				ops = append(ops, planner.ForChange(others, planner.Change{EnergyPreference: pref}, a.reader)...)
			}
			return a.apply(ops)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&cpuList, "cpus", "", "CPU list to change, e.g. 0-3,6")
	flags.BoolVar(&all, "all", false, "change every available CPU")
	flags.IntVar(&minMHz, "min", 0, "minimum scaling frequency in MHz")
	flags.IntVar(&maxMHz, "max", 0, "maximum scaling frequency in MHz")
	flags.StringVar(&governor, "governor", "", "scaling governor")
	flags.StringVar(&pref, "pref", "", "energy-performance preference (every CPU unless energyPrefPerCpu is set)")
	flags.BoolVar(&online, "online", false, "bring the CPUs online")
	flags.BoolVar(&offline, "offline", false, "take the CPUs offline (CPU 0 is never taken offline)")
	return cmd
}

func newHelperCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "helper",
		Short: "Talk to the privileged helper directly",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "authorized",
		Short: "Check whether this user may change CPU settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.helperContext(cmd)
			defer cancel()

			ok, err := a.helper.IsAuthorized(ctx)
			if err != nil {
				return explainHelperError(err)
			}
			if ok {
				fmt.Fprintln(a.out, styles.OK.Render("authorized"))
			} else {
				fmt.Fprintln(a.out, styles.Fail.Render("not authorized"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "quit",
		Short: "Ask the helper to exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.helperContext(cmd)
			defer cancel()

			if err := a.helper.Quit(ctx); err != nil {
				return explainHelperError(err)
			}
			fmt.Fprintln(a.out, "helper asked to exit")
			return nil
		},
	})
	return cmd
}
