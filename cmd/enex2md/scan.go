// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/make0x0/enex2md/internal/enex"
	"github.com/make0x0/enex2md/internal/pipeline"
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Count notes in archives without converting them",
	Long: `Scan counts note boundaries in each discovered archive with a fast
pass that does not materialize attachment payloads. Malformed archives
report the partial count with a warning instead of aborting.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("input.path")
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			path = "."
		}
		recursive, _ := cmd.Flags().GetBool("recursive")

		_, archives, err := pipeline.Discover(path, recursive)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		total := 0
		for _, archive := range archives {
			count, err := enex.CountNotes(archive)
			if err != nil {
				fmt.Fprintf(out, "%s: %d notes (partial: %v)\n", archive, count, err)
			} else {
				fmt.Fprintf(out, "%s: %d notes\n", archive, count)
			}
			total += count
		}
		fmt.Fprintf(out, "total: %d notes in %d archives\n", total, len(archives))
		return nil
	},
}

func init() {
	scanCmd.Flags().BoolP("recursive", "r", false, "search directories recursively for archives")

	rootCmd.AddCommand(scanCmd)
}
