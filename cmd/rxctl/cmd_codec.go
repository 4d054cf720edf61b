package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Skufu/rxcompass/internal/labels"
)

func newCodecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "codec",
		Short: "Build and inspect label codec artifacts",
	}
	cmd.AddCommand(newCodecFitCmd())
	cmd.AddCommand(newCodecShowCmd())
	return cmd
}

func newCodecFitCmd() *cobra.Command {
	var column, output string
	cmd := &cobra.Command{
		Use:   "fit TRAIN.csv...",
		Short: "Fit a label codec from the diagnosis column of training files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var all []string
			for _, path := range args {
				found, err := readColumn(path, column)
				if err != nil {
					return err
				}
				all = append(all, found...)
			}
			if len(all) == 0 {
				return fmt.Errorf("no labels found in column %q", column)
			}
			codec := labels.Fit(all)
			data, err := codec.Marshal()
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write codec: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d classes to %s\n", codec.Len(), output)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&column, "column", "prognosis", "Name of the diagnosis column")
	f.StringVarP(&output, "output", "o", "", "Output file (stdout when empty)")
	return cmd
}

func newCodecShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ENCODER.yaml",
		Short: "List the classes of a codec with their ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			codec, err := labels.Load(data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for id, name := range codec.Classes() {
				fmt.Fprintf(out, "%3d  %s\n", id, name)
			}
			return nil
		},
	}
}

// readColumn returns the trimmed, non-empty values of column in path.
func readColumn(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	idx := slices.Index(header, column)
	if idx < 0 {
		return nil, fmt.Errorf("%s: no column %q", path, column)
	}

	var out []string
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if idx >= len(rec) {
			return nil, fmt.Errorf("%s: line %d has no %q value", path, line, column)
		}
		if v := strings.TrimSpace(rec[idx]); v != "" {
			out = append(out, v)
		}
	}
}
