// Package glmgo fits generalized linear models to neural data in Go.
//
// glmgo pairs a family of basis functions (splines, raised cosines,
// orthogonalised exponentials) with a regularized Poisson or Gamma GLM, in
// the shape of a scikit-learn estimator: functional options, GetParams /
// SetParams, Fit / Predict / Score, and pipelines that can be cross-validated
// and grid-searched.
//
// # Installation
//
//	go get github.com/YuminosukeSato/glmgo
//
// # Quick Start
//
// A place-cell tuning curve from position samples and spike counts:
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/glmgo/basis"
//	    "github.com/YuminosukeSato/glmgo/glm"
//	)
//
//	func main() {
//	    b, err := basis.NewBSpline(10, basis.WithBounds(0, 1))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    X, err := b.ComputeFeatures(position)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    model, err := glm.NewGLM(
//	        glm.WithRegularizer("Ridge"),
//	        glm.WithRegularizerStrength(0.01),
//	    )
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if err := model.Fit(X, spikes); err != nil {
//	        log.Fatal(err)
//	    }
//
//	    rates, err := model.Predict(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println("Rates:", rates)
//	}
//
// # Packages
//
//   - basis: basis functions, composition (Add, Mul, Pow), conv mode
//   - glm: the GLM regressor (Fit, Update, FitStream, Simulate, weights)
//   - regressor: shared regularizer/solver configuration and introspection
//   - regularizer: UnRegularized, Ridge, Lasso, GroupLasso
//   - solver: gonum optimize adapters and a proximal gradient solver
//   - observation: Poisson and Gamma observation models
//   - pipeline: Pipeline, KFold, CrossValScore, GridSearchCV
//   - stream: batch feeding for FitStream
//   - metrics, preprocessing: deviances, regression metrics, scalers
//   - config, cmd/glmfit: YAML-driven command line fitting
//   - viz: basis and tuning-curve plots
//   - core/model, core/parallel: contracts, persistence, parallel helpers
//   - pkg/errors, pkg/log: error taxonomy and structured logging
//
// # Performance
//
// Basis evaluation and prediction switch to row-parallel execution above
// parallel.DefaultThreshold rows. Grid search runs every (candidate, fold)
// pair on a bounded worker pool.
package glmgo
