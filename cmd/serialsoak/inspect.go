package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
	"github.com/msaeedsaeedi/serialsoak/internal/infra"
	"github.com/msaeedsaeedi/serialsoak/internal/store"
)

func newPortsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports available on this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := infra.ListPorts()
			if err != nil {
				return err
			}
			return printPorts(cmd.OutOrStdout(), ports, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func printPorts(w io.Writer, ports []infra.PortInfo, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ports)
	}

	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tPRODUCT\tSERIAL\tVID:PID")
	for _, p := range ports {
		ids := "-"
		if p.USB {
			ids = p.VendorID + ":" + p.ProductID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Path, orDash(p.Product), orDash(p.SerialNumber), ids)
	}
	return tw.Flush()
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Show the built-in device profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printProfiles(cmd.OutOrStdout())
		},
	}
}

func printProfiles(w io.Writer) error {
	for i, name := range domain.ProfileNames() {
		p, err := domain.LookupProfile(name)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s - %s\n", p.Name, p.Description)
		fmt.Fprintf(w, "  success code: %d, timeout code: %d\n", p.SuccessCode, p.TimeoutCode)
		fmt.Fprintf(w, "  abort cycle on failure: %t\n", p.AbortOnFailure)
		fmt.Fprintf(w, "  defaults: port %s, %d baud, %d cycles, delay %s\n",
			p.Defaults.Port, p.Defaults.BaudRate, p.Defaults.Cycles, p.Defaults.Delay)
		fmt.Fprintf(w, "  commands: %s\n", strings.Join(p.Defaults.Commands, " "))
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	var (
		dbPath   string
		instance string
		limit    int
		cyclesOf string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded soak runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			if cyclesOf != "" {
				cycles, err := st.Cycles(cmd.Context(), cyclesOf)
				if err != nil {
					return err
				}
				return printCycles(cmd.OutOrStdout(), cycles)
			}

			runs, err := st.ListRuns(cmd.Context(), instance, limit)
			if err != nil {
				return err
			}
			return printRuns(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by run --db")
	cmd.Flags().StringVar(&instance, "id", "", "Only show runs of this instance")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	cmd.Flags().StringVar(&cyclesOf, "cycles", "", "Show the cycles of one run ID")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func printRuns(w io.Writer, runs []store.RunRecord) error {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tINSTANCE\tPROFILE\tSTATUS\tSTARTED\tCOMMANDS\tERRORS\tTIMEOUTS\tCYCLES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d/%d\n",
			r.ID, r.InstanceID, r.Profile, r.Status,
			r.StartedAt.Local().Format(time.DateTime),
			r.TotalCommands, r.Errors, r.Timeouts, r.CyclesCompleted, r.Cycles)
	}
	return tw.Flush()
}

func printCycles(w io.Writer, cycles []store.CycleRecord) error {
	if len(cycles) == 0 {
		fmt.Fprintln(w, "No cycles recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tRESULT\tERRORS\tTIMEOUTS\tDURATION")
	for _, c := range cycles {
		result := "Failed"
		if c.Accepted {
			result = "Success"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", c.Cycle, result, c.Errors, c.Timeouts,
			c.FinishedAt.Sub(c.StartedAt).Round(time.Millisecond))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
