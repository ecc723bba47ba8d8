package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pe200012/cpupower-gui-qml/internal/config"
	"github.com/pe200012/cpupower-gui-qml/internal/planner"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "List, inspect, apply and save settings profiles",
	}
	cmd.AddCommand(
		newProfileListCmd(a),
		newProfileShowCmd(a),
		newProfileApplyCmd(a),
		newProfileSaveCmd(a),
		newProfileDeleteCmd(a),
		newProfileDefaultCmd(a),
	)
	return cmd
}

func newProfileListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := a.profiles.Names()
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				p, err := a.profiles.Get(name)
				if err != nil {
					return err
				}
				marker := ""
				if name == a.settings.DefaultProfile {
					marker = "*"
				}
				rows = append(rows, []string{marker, p.Name, p.Source.String(), fmt.Sprint(len(p.Entries))})
			}
			fmt.Fprintln(a.out, renderTable([]string{"", "Profile", "Source", "CPUs"}, rows))
			return nil
		},
	}
}

func newProfileShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show the per-CPU settings of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.profiles.Get(args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(a.out, styles.Title.Render(fmt.Sprintf("%s (%s)", p.Name, p.Source)))
			if p.Path != "" {
				fmt.Fprintln(a.out, styles.Muted.Render(p.Path))
			}
			rows := make([][]string, 0, len(p.Entries))
			for _, e := range p.Entries {
				rows = append(rows, []string{
					fmt.Sprint(e.CPU),
					mhz(e.MinKHz),
					mhz(e.MaxKHz),
					orDash(e.Governor),
					yesNo(e.Online),
					orDash(e.EnergyPreference),
				})
			}
			fmt.Fprintln(a.out, renderTable([]string{"CPU", "Min MHz", "Max MHz", "Governor", "Online", "Energy pref"}, rows))
			return nil
		},
	}
}

func newProfileApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply [NAME]",
		Short: "Apply a profile (default: the configured default profile)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := a.settings.DefaultProfile
			if len(args) == 1 {
				name = args[0]
			}
			p, err := a.profiles.Get(name)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.Title.Render("Applying profile "+p.Name))
			return a.apply(planner.ForProfile(p, a.reader))
		},
	}
}

func newProfileSaveCmd(a *app) *cobra.Command {
	var (
		cpuList string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "save NAME",
		Short: "Save the current CPU settings as a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cpus, err := selectCPUs(a, cpuList, all, true)
			if err != nil {
				return err
			}
			p, err := a.profiles.Save(args[0], planner.Capture(a.reader, cpus))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.OK.Render(fmt.Sprintf("saved profile %s to %s", p.Name, p.Path)))
			return nil
		},
	}
	cmd.Flags().StringVar(&cpuList, "cpus", "", "CPU list to capture (default: all available)")
	cmd.Flags().BoolVar(&all, "all", false, "capture every available CPU")
	return cmd
}

func newProfileDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a user profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.profiles.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.OK.Render("deleted profile "+args[0]))
			return nil
		},
	}
}

func newProfileDefaultCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "default NAME",
		Short: "Make NAME the profile applied by a bare \"profile apply\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.profiles.Get(args[0]); err != nil {
				return err
			}
			a.settings.DefaultProfile = args[0]
			if err := config.SaveSettings(a.cfg.UserConfigDir, a.settings); err != nil {
				return err
			}
			fmt.Fprintln(a.out, styles.OK.Render("default profile is now "+args[0]))
			return nil
		},
	}
}
