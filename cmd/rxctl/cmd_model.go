package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Skufu/rxcompass/internal/artifact"
	"github.com/Skufu/rxcompass/internal/explain"
	"github.com/Skufu/rxcompass/internal/model"
)

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect classifier artifacts",
	}
	cmd.AddCommand(newModelInspectCmd())
	return cmd
}

type inspection struct {
	Kind        string   `json:"kind"`
	Features    int      `json:"features"`
	Classes     int      `json:"classes"`
	Importance  string   `json:"importance"`
	Explainer   string   `json:"explainer"`
	TopFeatures []string `json:"topFeatures,omitempty"`
}

func newModelInspectCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print shape, importance source and explainer of a classifier",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			f := model.Load(ctx, artifact.FileSource{}, path)
			if err := f.Err(); err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			return writeJSON(cmd.OutOrStdout(), inspect(f))
		},
	}
	cmd.Flags().StringVar(&path, "model", "models/model.json", "Classifier artifact")
	return cmd
}

func inspect(f *model.Facade) inspection {
	weights, source := f.GlobalImportance()
	out := inspection{
		Kind:       f.Kind(),
		Features:   f.NumFeatures(),
		Classes:    f.NumClasses(),
		Importance: string(source),
		Explainer:  explainerName(f.Explainer(model.ExplainerAuto, 1, 0)),
	}
	names := f.FeatureNames()
	if len(names) == len(weights) && source != model.ImportanceUniform {
		order := make([]int, len(weights))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int {
			switch {
			case weights[a] > weights[b]:
				return -1
			case weights[a] < weights[b]:
				return 1
			}
			return 0
		})
		for _, i := range order[:min(10, len(order))] {
			out.TopFeatures = append(out.TopFeatures, names[i])
		}
	}
	return out
}

func explainerName(e explain.Explainer) string {
	switch e.(type) {
	case nil:
		return "none"
	case *explain.Sampling:
		return "sampling"
	}
	return "native"
}
