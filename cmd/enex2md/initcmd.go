// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const configFileName = "enex2md.yaml"

const defaultConfig = `input:
  path: "."
  recursive: false

output:
  root_dir: "./Converted_Notes"
  # Go reference layout for dates in directory names.
  date_format: "2006-01-02"
  sanitize_char: "_"
  # Non-empty subset of: html, markdown, pdf.
  formats: ["html"]
  layout_fit: false

ocr:
  enabled: false
  language: "eng"
  workers: 4
  min_dimension: 50

processing:
  timeout_seconds: 300
  # retry_from: "Converted_Notes/failures.json"
  failure_log: ""

index:
  enabled: false
  path: ""
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configFileName); err == nil {
			return fmt.Errorf("%s already exists", configFileName)
		}
		if err := os.WriteFile(configFileName, []byte(defaultConfig), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", configFileName, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s. Edit it and run: enex2md convert\n", configFileName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
