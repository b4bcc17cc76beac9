// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Pidtrace
package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pidtrace/pidtrace/pkg/option"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "pidtrace",
		Short:        "Trace syscalls, mmaps and TCP connects of selected processes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := option.ReadAndSetFlags(); err != nil {
				return err
			}
			return pidtraceExecute(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	option.AddFlags(flags)
	viper.BindPFlags(flags)

	rootCmd.AddCommand(newProbesCmd(), newVersionCmd())
	return rootCmd
}
