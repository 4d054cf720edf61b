// Package predict runs an uploaded CSV through the classifier, the label
// codec and the attribution engine and assembles the per-patient response.
package predict

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Skufu/rxcompass/internal/apperr"
	"github.com/Skufu/rxcompass/internal/attribution"
	"github.com/Skufu/rxcompass/internal/labels"
	"github.com/Skufu/rxcompass/internal/model"
	"github.com/Skufu/rxcompass/internal/tabular"
)

type Prediction struct {
	PatientID   int                               `json:"patientId"`
	Prediction  string                            `json:"prediction"`
	Confidence  float64                           `json:"confidence"`
	TopFeatures []attribution.FeatureContribution `json:"topFeatures"`
	Attribution attribution.Source                `json:"attribution"`
}

type Response struct {
	Predictions   []Prediction `json:"predictions"`
	TotalPatients int          `json:"totalPatients"`
}

// Service holds the artifacts loaded at startup. It is read-only after
// construction and safe for concurrent requests.
type Service struct {
	model    *model.Facade
	codec    *labels.Codec
	codecErr error
	engine   *attribution.Engine
	logger   *slog.Logger
}

type Options struct {
	Model *model.Facade
	// Codec may be nil when CodecErr explains why it failed to load.
	Codec    *labels.Codec
	CodecErr error
	// Engine defaults to global importance only.
	Engine *attribution.Engine
	Logger *slog.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codecErr := opts.CodecErr
	if opts.Codec == nil && codecErr == nil {
		codecErr = fmt.Errorf("no label codec configured")
	}
	engine := opts.Engine
	if engine == nil && opts.Model != nil {
		engine = attribution.NewEngine(attribution.Config{Global: GlobalImportance(opts.Model), Logger: logger})
	}
	return &Service{
		model:    opts.Model,
		codec:    opts.Codec,
		codecErr: codecErr,
		engine:   engine,
		logger:   logger,
	}
}

// GlobalImportance adapts the facade's importance vector for the engine.
func GlobalImportance(f *model.Facade) attribution.GlobalImportanceFunc {
	return func() []float64 {
		v, _ := f.GlobalImportance()
		return v
	}
}

// Ready reports an apperr.Unavailable error while either artifact is
// missing.
func (s *Service) Ready() error {
	if s.model == nil {
		return apperr.New(apperr.Unavailable, unavailableMsg)
	}
	if err := s.model.Err(); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, unavailableMsg)
	}
	if s.codecErr != nil {
		return apperr.Wrap(apperr.Unavailable, s.codecErr, unavailableMsg)
	}
	return nil
}

const unavailableMsg = "Model not loaded. Please ensure the model and label encoder artifacts are available"

// Predict parses r and returns one Prediction per data row. Errors carry an
// apperr.Kind; attribution failures never surface here.
func (s *Service) Predict(ctx context.Context, r io.Reader) (resp *Response, err error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "prediction panicked", slog.Any("panic", p))
			resp, err = nil, apperr.New(apperr.Processing, processingMsg)
		}
	}()

	m, err := tabular.Parse(r)
	if err != nil {
		return nil, err
	}
	return s.PredictMatrix(ctx, m)
}

// PredictMatrix is Predict for an already parsed input.
func (s *Service) PredictMatrix(ctx context.Context, m *tabular.Matrix) (*Response, error) {
	if err := s.Ready(); err != nil {
		return nil, err
	}
	proba, classes, err := s.model.Predict(m.Data)
	if err != nil {
		s.logger.ErrorContext(ctx, "prediction failed", slog.String("error", err.Error()))
		return nil, processing(err)
	}
	names, err := s.codec.DecodeAll(classes)
	if err != nil {
		s.logger.ErrorContext(ctx, "decode failed", slog.String("error", err.Error()))
		return nil, processing(err)
	}

	attrs := s.engine.Attribute(ctx, m, classes)

	out := make([]Prediction, m.Rows())
	for i := range out {
		out[i] = Prediction{
			PatientID:   m.RowIndex[i] + 1,
			Prediction:  names[i],
			Confidence:  confidence(proba.RawRowView(i)),
			TopFeatures: attrs[i].Features,
			Attribution: attrs[i].Source,
		}
	}
	s.logger.InfoContext(ctx, "prediction complete",
		slog.Int("patients", len(out)),
		slog.Int("features", m.Cols()))
	return &Response{Predictions: out, TotalPatients: len(out)}, nil
}

// confidence is the top class probability as a percentage, rounded to two
// decimals.
func confidence(row []float64) float64 {
	return math.Round(floats.Max(row)*100*100) / 100
}

const processingMsg = "Error processing file"

// processing hides err behind a generic message; the cause stays in the
// chain for logging.
func processing(err error) error {
	if apperr.Is(err, apperr.Unavailable) || apperr.Is(err, apperr.Processing) {
		return err
	}
	return apperr.Wrap(apperr.Processing, err, processingMsg)
}
