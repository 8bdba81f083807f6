// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the enex2md CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the enex2md CLI.
var rootCmd = &cobra.Command{
	Use:   "enex2md",
	Short: "Convert Evernote export archives into per-note bundles",
	Long: `enex2md converts .enex export archives into one output bundle per note:
a rendered document plus the note's extracted attachments, optionally
enriched with recognized text from images.

The convert subcommand drives the pipeline; scan estimates archive sizes
without converting; search queries the recognition-text index.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./enex2md.yaml or ~/.config/enex2md/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("enex2md")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "enex2md"))
		}
	}

	viper.SetEnvPrefix("ENEX2MD")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
