package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/metascrub/backend/internal/metadata"
	"github.com/metascrub/backend/internal/models"
	"github.com/metascrub/backend/internal/storage"
)

type analyzeOutput struct {
	Metadata models.Record `json:"metadata"`
	Type     string        `json:"type"`
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE",
		Short: "Print a file's metadata and detected type as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDispatcher(os.TempDir())
			return analyzeFile(cmd.Context(), d, args[0], cmd.OutOrStdout())
		},
	}
}

func newStripCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "strip FILE",
		Short: "Write a copy of FILE with its metadata removed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := newDispatcher(os.TempDir())
			out, err := stripFile(cmd.Context(), d, args[0], output)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default is cleaned_<name> beside FILE)")
	return cmd
}

// analyzeFile writes {metadata, type} for path to w
func analyzeFile(ctx context.Context, d *metadata.Dispatcher, path string, w io.Writer) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	extraction := d.Extract(ctx, path)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(analyzeOutput{
		Metadata: extraction.Metadata,
		Type:     metadata.DetectType(path),
	})
}

// stripFile cleans path into output and returns the written path. Nothing
// is written when cleaning fails.
func stripFile(ctx context.Context, d *metadata.Dispatcher, path, output string) (string, error) {
	if output == "" {
		output = filepath.Join(filepath.Dir(path), storage.CleanedPrefix+filepath.Base(path))
	}

	cleaned := d.Strip(ctx, path)
	if cleaned.Failed() {
		return "", fmt.Errorf("cleaning %s: %w", filepath.Base(path), cleaned.Err)
	}

	if err := os.WriteFile(output, cleaned.Data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", output, err)
	}
	return output, nil
}
