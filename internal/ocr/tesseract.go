// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/make0x0/enex2md/pkg/types"
)

const binTesseract = "tesseract"

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) RunPiped(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	return cmd.Run()
}

var defaultExec executor = &osExecutor{}

// Tesseract is an Engine backed by the tesseract binary, invoked per
// image with TSV output. The binary is safe to run concurrently, one
// process per recognition task.
type Tesseract struct {
	bin  string
	exec executor
}

// NewTesseract locates the tesseract binary on PATH. It returns an error
// when the binary is unavailable so callers can disable recognition.
func NewTesseract() (*Tesseract, error) {
	return newTesseract(defaultExec)
}

func newTesseract(exec executor) (*Tesseract, error) {
	path, err := exec.LookPath(binTesseract)
	if err != nil {
		return nil, fmt.Errorf("tesseract not found on PATH: %w", err)
	}
	return &Tesseract{bin: path, exec: exec}, nil
}

// Recognize runs tesseract over the PNG-encoded image and parses its
// TSV output into word-level results.
func (t *Tesseract) Recognize(ctx context.Context, png []byte, lang string) ([]types.RecognizedWord, error) {
	if lang == "" {
		lang = "eng"
	}
	args := []string{"stdin", "stdout", "-l", lang, "--psm", "3", "tsv"}

	var out bytes.Buffer
	if err := t.exec.RunPiped(ctx, t.bin, args, bytes.NewReader(png), &out); err != nil {
		return nil, fmt.Errorf("running tesseract: %w", err)
	}
	return parseTSV(out.String())
}

// tsv column indices per tesseract's fixed TSV layout.
const (
	colLevel = 0
	colBlock = 2
	colPar   = 3
	colLine  = 4
	colLeft  = 6
	colTop   = 7
	colWidth = 8
	colHigh  = 9
	colConf  = 10
	colText  = 11
	numCols  = 12

	// levelWord marks word rows; lower levels describe page layout.
	levelWord = 5
)

func parseTSV(s string) ([]types.RecognizedWord, error) {
	var words []types.RecognizedWord
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header or trailing blank
		}
		cols := strings.Split(line, "\t")
		if len(cols) < numCols {
			continue
		}
		if atoi(cols[colLevel]) != levelWord {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil {
			continue
		}
		words = append(words, types.RecognizedWord{
			Text:       cols[colText],
			Confidence: conf,
			X:          atoi(cols[colLeft]),
			Y:          atoi(cols[colTop]),
			Width:      atoi(cols[colWidth]),
			Height:     atoi(cols[colHigh]),
			Block:      atoi(cols[colBlock]),
			Paragraph:  atoi(cols[colPar]),
			Line:       atoi(cols[colLine]),
		})
	}
	if len(words) == 0 && len(lines) <= 1 {
		return nil, fmt.Errorf("empty tesseract output")
	}
	return words, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
