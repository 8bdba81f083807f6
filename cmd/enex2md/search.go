// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/make0x0/enex2md/internal/index"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search converted notes by text and recognition content",
	Long: `Search queries the full-text index built during conversion (enable it
with index.enabled). Matches cover note text and recognized text from
image attachments, so a photographed receipt is as findable as a typed
note.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("index.path")
		if path == "" {
			root := viper.GetString("output.root_dir")
			if root == "" {
				root = "Converted_Notes"
			}
			path = filepath.Join(root, "index", "notes.db")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		ix, err := index.Open(path)
		if err != nil {
			return err
		}
		defer ix.Close()

		hits, err := ix.Search(cmd.Context(), strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(hits) == 0 {
			fmt.Fprintln(out, "no matches")
			return nil
		}
		for _, h := range hits {
			fmt.Fprintf(out, "%s\t%s\t%s\n", h.Source, h.Title, h.Dir)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 20, "maximum number of results")

	rootCmd.AddCommand(searchCmd)
}
