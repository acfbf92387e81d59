// Command glmfit fits a GLM to a synthetic place-cell session described by
// a YAML file and reports the held-out score.
//
//	glmfit -config place_cell.yaml -v
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/basis"
	"github.com/YuminosukeSato/glmgo/config"
	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/glm"
	"github.com/YuminosukeSato/glmgo/metrics"
	"github.com/YuminosukeSato/glmgo/pipeline"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
	"github.com/YuminosukeSato/glmgo/viz"
)

func main() {
	configPath := flag.String("config", "glmfit.yaml", "path to the YAML config")
	verbose := flag.Bool("v", false, "log solver iterations")
	flag.Parse()

	level := log.LevelInfo
	if *verbose {
		level = log.LevelDebug
	}
	log.SetProvider(log.NewConsoleProvider(os.Stderr, level))
	log.SetupZerologWarnings(os.Stderr)
	logger := log.GetLoggerWithName("glmfit")

	if err := run(*configPath, logger); err != nil {
		logger.Error("glmfit failed", err)
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(path string, logger log.Logger) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	b, err := cfg.Basis.BuildBasis()
	if err != nil {
		return errors.Wrap(err, "build basis")
	}
	opts, err := cfg.Model.GLMOptions()
	if err != nil {
		return err
	}
	g, err := glm.NewGLM(opts...)
	if err != nil {
		return err
	}
	pipe, err := pipeline.NewPipeline(
		[]pipeline.Step{{Name: "basis", Transformer: basis.NewTransformerBasis(b)}},
		"glm", g,
	)
	if err != nil {
		return err
	}

	sess := simulateSession(cfg.Data, g.ObservationModel())
	inputs := cfg.Basis.LeafInputs()
	split, err := cfg.Data.Split()
	if err != nil {
		return err
	}
	Xtr, ytr := sess.design(inputs, 0, split)
	Xte, yte := sess.design(inputs, split, cfg.Data.Samples)
	logger.Info("session simulated",
		log.SamplesKey, cfg.Data.Samples,
		log.BasisLabelKey, b.Label(),
		log.BasisSizeKey, b.NOutputFeatures(),
		log.RandomSeedKey, cfg.Data.Seed,
	)

	start := time.Now()
	if err := pipe.Fit(Xtr, ytr); err != nil {
		return errors.Wrap(err, "fit")
	}
	score, err := pipe.Score(Xte, yte)
	if err != nil {
		return err
	}
	pred, err := pipe.Predict(Xte)
	if err != nil {
		return err
	}
	fields := []any{
		log.ScoreKey, score,
		"score_type", g.ScoreType(),
		log.IterationKey, g.NIter(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	}
	fields = append(fields, heldOutMetrics(g.ObservationModel().Name(), yte, pred, logger)...)
	logger.Info("held-out evaluation", fields...)

	return writeOutputs(cfg.Output, b, g, sess, split, pred.RawVector().Data, logger)
}

// heldOutMetrics returns mse, r2 and mean_deviance over the rows with a
// finite prediction as log fields. A metric that cannot be computed is
// skipped with a warning.
func heldOutMetrics(obs string, y, pred mat.Vector, logger log.Logger) []any {
	deviance := metrics.PoissonDeviance
	if obs != "Poisson" {
		deviance = metrics.GammaDeviance
	}
	y, pred = metrics.DropNaN(y, pred)
	var fields []any
	for _, m := range []struct {
		key string
		fn  func(yTrue, yPred mat.Vector) (float64, error)
	}{
		{"mse", metrics.MSE},
		{"r2", metrics.R2Score},
		{"mean_deviance", deviance},
	} {
		v, err := m.fn(y, pred)
		if err != nil {
			logger.Warn("held-out metric skipped", "metric", m.key, "error", err.Error())
			continue
		}
		fields = append(fields, m.key, v)
	}
	return fields
}

func writeOutputs(out config.OutputConfig, b basis.Basis, g *glm.GLM, sess *session, split int, pred []float64, logger log.Logger) error {
	if out.BasisPlot != "" {
		if b.NInputs() == 1 {
			if err := viz.PlotBasis(b, 200, out.BasisPlot); err != nil {
				return err
			}
			logger.Info("basis plot written", "path", out.BasisPlot)
		} else {
			logger.Warn("basis plot skipped: only one-input bases can be drawn", log.BasisLabelKey, b.Label())
		}
	}
	if out.TuningPlot != "" {
		if err := viz.PlotTuning(sess.Position[split:], sess.Y[split:], pred, out.TuningPlot); err != nil {
			return err
		}
		logger.Info("tuning plot written", "path", out.TuningPlot)
	}
	if out.Weights != "" {
		codec, err := model.ParseCodec(out.Codec)
		if err != nil {
			return err
		}
		if err := g.SaveModel(out.Weights, codec); err != nil {
			return err
		}
		logger.Info("weights written", "path", out.Weights, "codec", codec.String())
	}
	return nil
}
