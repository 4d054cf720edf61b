// Package attribution explains each patient's prediction as a ranked list of
// contributing symptoms.
//
// Per-sample explanation runs once for the whole batch. If it fails for any
// reason (error, panic, timeout, no explainer) every row falls back to the
// model's global importance ranking, computed once per batch. A row the
// explanation does not cover falls back the same way. Failures are logged
// and never returned.
package attribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Skufu/rxcompass/internal/apperr"
	"github.com/Skufu/rxcompass/internal/explain"
	"github.com/Skufu/rxcompass/internal/tabular"
)

type Source string

const (
	SourcePatient Source = "patient"
	SourceGlobal  Source = "global"
)

type Attribution struct {
	Features []FeatureContribution
	Source   Source
}

// GlobalImportanceFunc returns one weight per input column.
type GlobalImportanceFunc func() []float64

type Config struct {
	// Explainer may be nil, in which case every row uses global importance.
	Explainer explain.Explainer
	Global    GlobalImportanceFunc
	// Timeout bounds the per-sample explanation; zero means no bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	explainer explain.Explainer
	global    GlobalImportanceFunc
	timeout   time.Duration
	logger    *slog.Logger
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		explainer: cfg.Explainer,
		global:    cfg.Global,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Attribute returns one Attribution per row of m, in row order. predicted
// holds the predicted class id of each row.
func (e *Engine) Attribute(ctx context.Context, m *tabular.Matrix, predicted []int) []Attribution {
	perRow, err := e.explain(ctx, m, predicted)
	if err != nil {
		e.logger.WarnContext(ctx, "per-sample attribution failed, using global importance",
			slog.String("error", err.Error()),
			slog.Int("rows", m.Rows()))
	}

	var fallback []FeatureContribution
	out := make([]Attribution, m.Rows())
	missing := 0
	for r := range out {
		if phi, ok := perRow[r]; ok {
			out[r] = Attribution{Features: Rank(phi, m.Row(r), m.Columns), Source: SourcePatient}
			continue
		}
		if fallback == nil {
			fallback = e.globalTopK(m.Columns)
		}
		out[r] = Attribution{Features: cloneList(fallback), Source: SourceGlobal}
		missing++
	}
	if err == nil && missing > 0 {
		e.logger.WarnContext(ctx, "explanation did not cover every row",
			slog.Int("rows", m.Rows()),
			slog.Int("fallback_rows", missing))
	}
	return out
}

// explain runs the per-sample explainer and reconciles the result. Any failure is returned as
// an apperr.Attribution error together with a nil map.
func (e *Engine) explain(ctx context.Context, m *tabular.Matrix, predicted []int) (perRow map[int][]float64, err error) {
	if e.explainer == nil {
		return nil, apperr.New(apperr.Attribution, "no per-sample explainer configured")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			perRow = nil
			err = apperr.New(apperr.Attribution, fmt.Sprintf("explainer panicked: %v", r))
		}
	}()

	expl, err := e.explainer.Explain(ctx, m.Data)
	if err != nil {
		return nil, apperr.Wrap(apperr.Attribution, err, "explainer failed")
	}
	if expl == nil {
		return nil, apperr.New(apperr.Attribution, "explainer returned no result")
	}
	return Reconcile(expl, predicted, m.Cols()), nil
}

func (e *Engine) globalTopK(columns []string) []FeatureContribution {
	var weights []float64
	if e.global != nil {
		weights = e.global()
	}
	if len(weights) != len(columns) {
		weights = fitWidth(weights, len(columns))
	}
	return GlobalTopK(weights, columns)
}

func cloneList(list []FeatureContribution) []FeatureContribution {
	return append([]FeatureContribution(nil), list...)
}
