package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"neuroplate/internal/config"
	"neuroplate/pkg/neuroplate"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "neuroplatectl",
		Short: "Simulate 3D neural organoids under electrode-array stimulation",
		Long: `neuroplatectl builds simulated neural organoids, drives them with
scheduled electrode stimulation while structural plasticity rewires the
network, and records monitor streams to a queryable store.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("store", "sqlite", "Store backend: sqlite or memory")
	rootCmd.PersistentFlags().String("db", "neuroplate.db", "SQLite database path")

	rootCmd.AddCommand(
		newVersionCmd(),
		newBuildCmd(),
		newRunCmd(),
		newRunsCmd(),
		newRecordingsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("neuroplatectl version %s\n", version)
		},
	}
}

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <experiment.yaml>",
		Short: "Validate an experiment config and print the organoid summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := config.Load(args[0])
			if err != nil {
				return err
			}
			units := 0
			for _, g := range exp.Organoid.Groups {
				units += g.Count
			}
			fmt.Printf("experiment: %s\n", exp.Name)
			fmt.Printf("units: %d in %d group(s), %s %gx%gx%g\n",
				units, len(exp.Organoid.Groups),
				defaultString(exp.Organoid.Distribution, "cube"),
				exp.Organoid.Extent, exp.Organoid.Extent, exp.Organoid.Extent)
			fmt.Printf("steps: %d at dt=%g\n", exp.Steps, exp.Step)
			fmt.Printf("stimuli: %d, monitors: %d\n", len(exp.Stimuli), len(exp.Monitors))
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <experiment.yaml>",
		Short: "Execute an experiment and persist its recordings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := config.Load(args[0])
			if err != nil {
				return err
			}
			client, err := clientFrom(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.RunExperiment(cmd.Context(), exp)
			if err != nil {
				return err
			}
			fmt.Printf("run %s: %d steps, %d units, %d electrode(s)\n",
				summary.RunID, summary.Steps, summary.Units, summary.Electrodes)
			for _, m := range summary.Monitors {
				fmt.Printf("  monitor %s recorded\n", m)
			}
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFrom(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tCREATED\tSTEPS\tUNITS\tSTATUS")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
					run.ID, run.CreatedAtUTC, run.Steps, run.Units, run.Status)
			}
			return w.Flush()
		},
	}
}

func newRecordingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordings <run-id> <monitor>",
		Short: "Query recorded samples for a run and monitor",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetFloat64("from")
			to, _ := cmd.Flags().GetFloat64("to")
			asJSON, _ := cmd.Flags().GetBool("json")

			client, err := clientFrom(cmd)
			if err != nil {
				return err
			}
			defer client.Close()

			samples, err := client.Recordings(cmd.Context(), args[0], args[1], from, to)
			if err != nil {
				return err
			}
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(samples)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STEP\tTIME\tKIND\tTARGET\tVARIABLE\tVALUE\tABSENT")
			for _, s := range samples {
				fmt.Fprintf(w, "%d\t%g\t%s\t%d\t%s\t%g\t%v\n",
					s.Step, s.Time, s.Kind, s.Target, s.Variable, s.Value, s.Absent)
			}
			return w.Flush()
		},
	}
	cmd.Flags().Float64("from", 0, "Range start time (inclusive)")
	cmd.Flags().Float64("to", 1e18, "Range end time (inclusive)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func clientFrom(cmd *cobra.Command) (*neuroplate.Client, error) {
	kind, _ := cmd.Flags().GetString("store")
	db, _ := cmd.Flags().GetString("db")
	return neuroplate.NewClient(cmd.Context(), neuroplate.Options{StoreKind: kind, DBPath: db})
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
