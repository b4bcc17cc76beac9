// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace
package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pidtrace/pidtrace/pkg/elf"
	"github.com/pidtrace/pidtrace/pkg/option"
	"github.com/pidtrace/pidtrace/pkg/version"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type probeRow struct {
	Name     string `json:"name"`
	Section  string `json:"section"`
	Category string `json:"category,omitempty"`
	Attach   string `json:"attach"`
	Enabled  bool   `json:"enabled"`
}

func probeRows(image []byte) ([]probeRow, error) {
	syms, err := elf.ProgramSymbols(image)
	if err != nil {
		return nil, err
	}
	rows := make([]probeRow, 0, len(syms))
	for _, s := range syms {
		rows = append(rows, probeRow{
			Name:     s.Name,
			Section:  s.Section,
			Category: s.Category,
			Attach:   s.AttachPoint,
			Enabled:  !option.Config.DisabledProbes.Contains(s.Name),
		})
	}
	return rows, nil
}

func printProbeTable(w io.Writer, rows []probeRow) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSECTION\tCATEGORY\tATTACH\tENABLED")
	for _, r := range rows {
		cat := r.Category
		if cat == "" {
			cat = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", r.Name, r.Section, cat, r.Attach, r.Enabled)
	}
	return tw.Flush()
}

func newProbesCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "probes [object]",
		Short: "List the probes of a compiled image and their attach points",
		Long: "Resolve the attach point of every probe in the image without loading anything. " +
			"The image defaults to the configured bpf-lib/bpf-object.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := option.ReadAndSetFlags(); err != nil {
				return err
			}
			path := option.Config.BpfObjectPath()
			if len(args) == 1 {
				path = args[0]
			}
			image, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rows, err := probeRows(image)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			switch output {
			case outputJSON:
				return encodeJSON(cmd, rows)
			case outputTable:
				return printProbeTable(cmd.OutOrStdout(), rows)
			}
			return fmt.Errorf("invalid output format %q, expected %q or %q", output, outputTable, outputJSON)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format. table or json")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			version.ReadBuildInfo().Print(cmd.OutOrStdout())
		},
	}
}
