// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/make0x0/enex2md/internal/index"
	"github.com/make0x0/enex2md/internal/journal"
	"github.com/make0x0/enex2md/internal/ocr"
	"github.com/make0x0/enex2md/internal/pipeline"
	"github.com/make0x0/enex2md/internal/resource"
	"github.com/make0x0/enex2md/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [path]",
	Short: "Convert export archives into per-note output bundles",
	Long: `Convert processes one archive file or every archive under a directory.
Each note becomes an output directory named <date>_<title> containing the
rendered document and a note_contents/ folder with the note's attachments
and their recognition sidecars.

Already-converted notes are skipped, so interrupted runs can simply be
re-run. Failures are journaled; pass --retry-from to re-run exactly the
journaled notes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFromViper()
		if len(args) > 0 {
			cfg.Input.Path = args[0]
		}
		applyConvertFlags(cmd, &cfg)
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return err
		}
		return runConvert(cmd, cfg)
	},
}

func init() {
	convertCmd.Flags().BoolP("recursive", "r", false, "search directories recursively for archives")
	convertCmd.Flags().StringP("output", "o", "", "output root directory")
	convertCmd.Flags().String("format", "", "comma-separated output formats: html,markdown,pdf")
	convertCmd.Flags().Bool("ocr", false, "recognize text in image attachments")
	convertCmd.Flags().String("lang", "", "recognition language (e.g. eng, jpn)")
	convertCmd.Flags().Int("timeout", 0, "per-note timeout in seconds")
	convertCmd.Flags().String("retry-from", "", "retry-set file restricting the run to listed notes")

	rootCmd.AddCommand(convertCmd)
}

// configFromViper builds the run configuration from the loaded config
// file and environment.
func configFromViper() types.Config {
	var cfg types.Config
	cfg.Input.Path = viper.GetString("input.path")
	cfg.Input.Recursive = viper.GetBool("input.recursive")
	cfg.Output.RootDir = viper.GetString("output.root_dir")
	cfg.Output.DateFormat = viper.GetString("output.date_format")
	cfg.Output.SanitizeChar = viper.GetString("output.sanitize_char")
	for _, f := range viper.GetStringSlice("output.formats") {
		cfg.Output.Formats = append(cfg.Output.Formats, types.Format(f))
	}
	cfg.Output.LayoutFit = viper.GetBool("output.layout_fit")
	cfg.OCR.Enabled = viper.GetBool("ocr.enabled")
	cfg.OCR.Language = viper.GetString("ocr.language")
	cfg.OCR.Workers = viper.GetInt("ocr.workers")
	cfg.OCR.MinDimension = viper.GetInt("ocr.min_dimension")
	cfg.Processing.TimeoutSeconds = viper.GetInt("processing.timeout_seconds")
	cfg.Processing.RetryFrom = viper.GetString("processing.retry_from")
	cfg.Processing.FailureLog = viper.GetString("processing.failure_log")
	cfg.Index.Enabled = viper.GetBool("index.enabled")
	cfg.Index.Path = viper.GetString("index.path")
	return cfg
}

func applyConvertFlags(cmd *cobra.Command, cfg *types.Config) {
	if v, _ := cmd.Flags().GetBool("recursive"); v {
		cfg.Input.Recursive = true
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output.RootDir = v
	}
	if v, _ := cmd.Flags().GetString("format"); v != "" {
		cfg.Output.Formats = nil
		for _, f := range strings.Split(v, ",") {
			cfg.Output.Formats = append(cfg.Output.Formats, types.Format(strings.TrimSpace(f)))
		}
	}
	if v, _ := cmd.Flags().GetBool("ocr"); v {
		cfg.OCR.Enabled = true
	}
	if v, _ := cmd.Flags().GetString("lang"); v != "" {
		cfg.OCR.Language = v
	}
	if v, _ := cmd.Flags().GetInt("timeout"); v > 0 {
		cfg.Processing.TimeoutSeconds = v
	}
	if v, _ := cmd.Flags().GetString("retry-from"); v != "" {
		cfg.Processing.RetryFrom = v
	}
}

func runConvert(cmd *cobra.Command, cfg types.Config) error {
	log := cmd.OutOrStdout()

	root, archives, err := pipeline.Discover(cfg.Input.Path, cfg.Input.Recursive)
	if err != nil {
		return err
	}
	if len(archives) == 0 {
		fmt.Fprintln(log, "no archives found")
		return nil
	}

	journalPath := cfg.Processing.FailureLog
	if journalPath == "" {
		journalPath = filepath.Join(cfg.Output.RootDir, "failures.json")
	}

	orch := &pipeline.Orchestrator{
		Output: cfg.Output,
		Resources: &resource.Processor{
			SanitizeChar: cfg.Output.SanitizeChar,
			OCR:          ocrRunner(cfg.OCR, log),
			Log:          log,
		},
		Renderers: map[types.Format]pipeline.Renderer{
			types.FormatHTML: &htmlRenderer{},
		},
		Journal: journal.New(journalPath),
		Timeout: cfg.NoteTimeout(),
		Log:     log,
	}

	if cfg.Processing.RetryFrom != "" {
		set, err := journal.LoadRetrySet(cfg.Processing.RetryFrom)
		if err != nil {
			return err
		}
		orch.Retry = set
		fmt.Fprintf(log, "retry mode: %d notes targeted\n", len(set))
	}

	if cfg.Index.Enabled {
		path := cfg.Index.Path
		if path == "" {
			path = filepath.Join(cfg.Output.RootDir, "index", "notes.db")
		}
		ix, err := index.Open(path)
		if err != nil {
			fmt.Fprintf(log, "warning: search index disabled: %v\n", err)
		} else {
			orch.Index = ix
			defer ix.Close()
		}
	}

	ctrl := &pipeline.Controller{
		Orchestrator: orch,
		Root:         root,
		OutputRoot:   cfg.Output.RootDir,
		Log:          log,
	}
	result, err := ctrl.Run(cmd.Context(), archives)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		fmt.Fprintf(log, "failures journaled to %s\n", journalPath)
	}
	return nil
}

// ocrRunner builds the recognition runner, or nil when recognition is
// off or the engine is unavailable.
func ocrRunner(cfg types.OCRConfig, log io.Writer) *ocr.Runner {
	if !cfg.Enabled {
		return nil
	}
	engine, err := ocr.NewTesseract()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: recognition disabled: %v\n", err)
		return nil
	}
	return &ocr.Runner{
		Engine:       engine,
		Language:     cfg.Language,
		Workers:      cfg.Workers,
		MinDimension: cfg.MinDimension,
		Log:          log,
	}
}
