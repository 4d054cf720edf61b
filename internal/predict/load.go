package predict

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Skufu/rxcompass/internal/artifact"
	"github.com/Skufu/rxcompass/internal/attribution"
	"github.com/Skufu/rxcompass/internal/labels"
	"github.com/Skufu/rxcompass/internal/logging"
	"github.com/Skufu/rxcompass/internal/model"
)

// LoadConfig names the two artifacts and tunes per-sample attribution.
type LoadConfig struct {
	ModelPath    string
	EncoderPath  string
	Explainer    model.ExplainerMode
	Permutations int
	Seed         uint64
	Timeout      time.Duration
}

// Load reads both artifacts from src and wires the attribution engine.
// Missing or corrupt artifacts are logged and leave the service unavailable;
// Load itself never fails.
func Load(ctx context.Context, src artifact.Source, cfg LoadConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	facade := model.Load(ctx, src, cfg.ModelPath)
	if err := facade.Err(); err != nil {
		logger.WarnContext(ctx, "classifier not loaded",
			slog.String("path", cfg.ModelPath),
			slog.String("error", err.Error()))
	} else {
		_, importance := facade.GlobalImportance()
		logger.InfoContext(ctx, "classifier loaded",
			slog.String("path", cfg.ModelPath),
			slog.String("kind", facade.Kind()),
			slog.Int("features", facade.NumFeatures()),
			slog.Int("classes", facade.NumClasses()),
			slog.String("importance", string(importance)))
	}

	codec, codecErr := loadCodec(ctx, src, cfg.EncoderPath)
	if codecErr != nil {
		logger.WarnContext(ctx, "label codec not loaded",
			slog.String("path", cfg.EncoderPath),
			slog.String("error", codecErr.Error()))
	} else if facade.Err() == nil && codec.Len() != facade.NumClasses() {
		logger.WarnContext(ctx, "label codec and classifier disagree on class count",
			slog.Int("codec_classes", codec.Len()),
			slog.Int("model_classes", facade.NumClasses()))
	}

	engine := attribution.NewEngine(attribution.Config{
		Explainer: facade.Explainer(cfg.Explainer, cfg.Permutations, cfg.Seed),
		Global:    GlobalImportance(facade),
		Timeout:   cfg.Timeout,
		Logger:    logging.Component(logger, "attribution"),
	})

	return NewService(Options{
		Model:    facade,
		Codec:    codec,
		CodecErr: codecErr,
		Engine:   engine,
		Logger:   logging.Component(logger, "predict"),
	})
}

func loadCodec(ctx context.Context, src artifact.Source, name string) (*labels.Codec, error) {
	data, err := src.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	codec, err := labels.Load(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return codec, nil
}
