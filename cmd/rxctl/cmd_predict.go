package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Skufu/rxcompass/internal/apperr"
	"github.com/Skufu/rxcompass/internal/artifact"
	"github.com/Skufu/rxcompass/internal/model"
	"github.com/Skufu/rxcompass/internal/predict"
)

type predictFlags struct {
	model        string
	encoder      string
	explainer    string
	permutations int
	seed         uint64
	timeout      time.Duration
	parallel     int
}

// fileResult is one input file's outcome; exactly one of Response and
// Error is set.
type fileResult struct {
	File     string            `json:"file"`
	Response *predict.Response `json:"response,omitempty"`
	Error    string            `json:"error,omitempty"`
	Kind     string            `json:"kind,omitempty"`
}

func newPredictCmd() *cobra.Command {
	var flags predictFlags
	cmd := &cobra.Command{
		Use:   "predict FILE.csv...",
		Short: "Run the prediction pipeline on local CSV files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, flags, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.model, "model", "models/model.json", "Classifier artifact")
	f.StringVar(&flags.encoder, "encoder", "models/label_encoder.yaml", "Label codec artifact")
	f.StringVar(&flags.explainer, "explainer", string(model.ExplainerAuto), "Per-sample explainer (auto, sampling, off)")
	f.IntVar(&flags.permutations, "permutations", 16, "Permutations per row for the sampling explainer")
	f.Uint64Var(&flags.seed, "seed", 42, "Seed for the sampling explainer")
	f.DurationVar(&flags.timeout, "timeout", 10*time.Second, "Per-file attribution timeout")
	f.IntVarP(&flags.parallel, "parallel", "p", 4, "Files processed concurrently")
	return cmd
}

func runPredict(cmd *cobra.Command, flags predictFlags, files []string) error {
	mode, err := model.ParseExplainerMode(flags.explainer)
	if err != nil {
		return err
	}
	if flags.parallel < 1 {
		return fmt.Errorf("--parallel must be at least 1, got %d", flags.parallel)
	}
	logger, err := commandLogger(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	svc := predict.Load(ctx, artifact.FileSource{}, predict.LoadConfig{
		ModelPath:    flags.model,
		EncoderPath:  flags.encoder,
		Explainer:    mode,
		Permutations: flags.permutations,
		Seed:         flags.seed,
		Timeout:      flags.timeout,
	}, logger)
	if err := svc.Ready(); err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}

	results := make([]fileResult, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(flags.parallel)
	for i, path := range files {
		g.Go(func() error {
			results[i] = predictFile(gCtx, svc, path)
			return nil
		})
	}
	_ = g.Wait()

	if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func predictFile(ctx context.Context, svc *predict.Service, path string) fileResult {
	res := fileResult{File: path}
	f, err := os.Open(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	resp, err := svc.Predict(ctx, f)
	if err != nil {
		res.Error = apperr.Message(err)
		res.Kind = apperr.KindOf(err).String()
		return res
	}
	res.Response = resp
	return res
}
