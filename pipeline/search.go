package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/glmgo/core/parallel"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
)

func cloneEstimator(est Estimator) (Estimator, error) {
	c, ok := est.Clone().(Estimator)
	if !ok {
		return nil, errors.NewTypeError("pipeline", "clone does not implement Score")
	}
	return c, nil
}

// fitAndScore fits a fresh clone of est configured with params on the
// train rows and scores it on the test rows with f (nil: est.Score).
func fitAndScore(est Estimator, params map[string]interface{}, f ScoreFunc, X mat.Matrix, y mat.Vector, fold Fold) (float64, error) {
	c, err := cloneEstimator(est)
	if err != nil {
		return 0, err
	}
	if len(params) > 0 {
		if err := c.SetParams(params); err != nil {
			return 0, err
		}
	}
	Xtr, ytr := selectRows(X, y, fold.Train)
	if err := c.Fit(Xtr, ytr); err != nil {
		return 0, err
	}
	Xte, yte := selectRows(X, y, fold.Test)
	return score(c, f, Xte, yte)
}

func checkXY(op string, X mat.Matrix, y mat.Vector) (int, error) {
	if X == nil || y == nil {
		return 0, errors.NewValueError(op, "X and y must not be nil")
	}
	r, _ := X.Dims()
	if y.Len() != r {
		return 0, errors.NewDimensionError(op, r, y.Len(), 0)
	}
	return r, nil
}

// CrossValScore returns the test score of each fold. Folds run
// concurrently on up to workers goroutines (<= 0 uses all CPUs); est
// itself is never fitted.
func CrossValScore(ctx context.Context, est Estimator, X mat.Matrix, y mat.Vector, cv KFold, workers int) ([]float64, error) {
	return CrossValScoreWithScoring(ctx, est, X, y, cv, workers, "")
}

// CrossValScoreWithScoring is CrossValScore with a named metric from
// Scorings instead of est.Score.
func CrossValScoreWithScoring(ctx context.Context, est Estimator, X mat.Matrix, y mat.Vector, cv KFold, workers int, scoring string) ([]float64, error) {
	f, err := lookupScorer(scoring)
	if err != nil {
		return nil, err
	}
	n, err := checkXY("CrossValScore", X, y)
	if err != nil {
		return nil, err
	}
	folds, err := cv.Split(n)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(folds))
	err = parallel.ForEach(ctx, len(folds), workers, func(_ context.Context, i int) error {
		s, err := fitAndScore(est, nil, f, X, y, folds[i])
		if err != nil {
			return errors.Wrapf(err, "fold %d", i)
		}
		scores[i] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scores, nil
}

// CandidateResult is the cross-validation outcome of one parameter set.
type CandidateResult struct {
	Params      map[string]interface{}
	Fingerprint uint64
	FoldScores  []float64
	MeanScore   float64
	StdScore    float64
	Rank        int
}

// GridSearchCV evaluates every combination of ParamGrid by k-fold
// cross-validation and refits the best one on all data.
type GridSearchCV struct {
	Estimator Estimator
	ParamGrid map[string][]interface{}
	CV        KFold
	Workers   int
	Refit     bool
	// Scoring names a metric from Scorings. Empty uses Estimator.Score.
	Scoring string

	Results       []CandidateResult
	BestParams    map[string]interface{}
	BestScore     float64
	BestEstimator Estimator

	logger log.Logger
}

// NewGridSearchCV returns a search with 5 unshuffled folds and refit enabled.
func NewGridSearchCV(est Estimator, grid map[string][]interface{}) *GridSearchCV {
	return &GridSearchCV{
		Estimator: est,
		ParamGrid: grid,
		CV:        NewKFold(5),
		Refit:     true,
		logger:    log.GetLoggerWithName("pipeline"),
	}
}

func (g *GridSearchCV) scoringName() string {
	if g.Scoring == "" {
		return "score"
	}
	return g.Scoring
}

// Candidates expands the grid into parameter sets in a deterministic
// order, dropping sets whose fingerprint was already produced.
func Candidates(grid map[string][]interface{}) ([]map[string]interface{}, []uint64) {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]interface{}{{}}
	for _, k := range keys {
		var next []map[string]interface{}
		for _, base := range combos {
			for _, v := range grid[k] {
				c := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}

	seen := map[uint64]bool{}
	var out []map[string]interface{}
	var prints []uint64
	for _, c := range combos {
		fp := Fingerprint(c)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, c)
		prints = append(prints, fp)
	}
	return out, prints
}

// Fingerprint hashes a parameter set independently of map order.
func Fingerprint(params map[string]interface{}) uint64 {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	d := xxhash.New()
	var buf [8]byte
	for _, k := range keys {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		switch v := params[k].(type) {
		case float64:
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = d.Write(buf[:])
		default:
			_, _ = d.WriteString(fmt.Sprintf("%T:%v", v, v))
		}
		_, _ = d.WriteString(";")
	}
	return d.Sum64()
}

// Fit runs the search. Every (candidate, fold) pair is one task on the
// worker pool; the first failure cancels the rest.
func (g *GridSearchCV) Fit(ctx context.Context, X mat.Matrix, y mat.Vector) error {
	if g.Estimator == nil {
		return errors.NewValueError("GridSearchCV.Fit", "estimator must not be nil")
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("pipeline")
	}
	f, err := lookupScorer(g.Scoring)
	if err != nil {
		return err
	}
	n, err := checkXY("GridSearchCV.Fit", X, y)
	if err != nil {
		return err
	}
	folds, err := g.CV.Split(n)
	if err != nil {
		return err
	}
	candidates, prints := Candidates(g.ParamGrid)

	// 学習前に各候補の設定を検証する
	for _, c := range candidates {
		trial, err := cloneEstimator(g.Estimator)
		if err != nil {
			return err
		}
		if err := trial.SetParams(c); err != nil {
			return err
		}
	}

	runID := log.NewRunID()
	logger := g.logger.With(log.RunIDKey, runID)
	logger.Info("grid search started",
		log.OperationKey, log.OperationEvaluate,
		"candidates", len(candidates),
		"folds", len(folds),
		"scoring", g.scoringName(),
	)

	nf := len(folds)
	scores := make([][]float64, len(candidates))
	for i := range scores {
		scores[i] = make([]float64, nf)
	}
	err = parallel.ForEach(ctx, len(candidates)*nf, g.Workers, func(_ context.Context, task int) error {
		ci, fi := task/nf, task%nf
		s, err := fitAndScore(g.Estimator, candidates[ci], f, X, y, folds[fi])
		if err != nil {
			return errors.Wrapf(err, "candidate %d fold %d", ci, fi)
		}
		scores[ci][fi] = s
		logger.Debug("fold scored", log.CandidateKey, ci, log.FoldKey, fi, log.ScoreKey, s)
		return nil
	})
	if err != nil {
		return err
	}

	g.Results = make([]CandidateResult, len(candidates))
	for i, c := range candidates {
		mean, std := stat.PopMeanStdDev(scores[i], nil)
		g.Results[i] = CandidateResult{
			Params:      c,
			Fingerprint: prints[i],
			FoldScores:  scores[i],
			MeanScore:   mean,
			StdScore:    std,
		}
	}
	order := make([]int, len(g.Results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return g.Results[order[a]].MeanScore > g.Results[order[b]].MeanScore
	})
	for rank, i := range order {
		g.Results[i].Rank = rank + 1
	}
	best := g.Results[order[0]]
	g.BestParams = best.Params
	g.BestScore = best.MeanScore

	logger.Info("grid search finished",
		log.OperationKey, log.OperationEvaluate,
		log.ScoreKey, g.BestScore,
		"best_params", fmt.Sprintf("%v", g.BestParams),
	)

	if !g.Refit {
		return nil
	}
	est, err := cloneEstimator(g.Estimator)
	if err != nil {
		return err
	}
	if err := est.SetParams(g.BestParams); err != nil {
		return err
	}
	if err := est.Fit(X, y); err != nil {
		return err
	}
	g.BestEstimator = est
	return nil
}
