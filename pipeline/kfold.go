package pipeline

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// Fold holds the train and test row indices of one split.
type Fold struct {
	Train []int
	Test  []int
}

// KFold splits rows into NSplits consecutive folds. With Shuffle the rows
// are permuted first using Seed. The first n % NSplits folds get one
// extra row.
type KFold struct {
	NSplits int
	Shuffle bool
	Seed    uint64
}

// NewKFold returns an unshuffled KFold.
func NewKFold(nSplits int) KFold {
	return KFold{NSplits: nSplits}
}

// Split returns the folds for n rows.
func (k KFold) Split(n int) ([]Fold, error) {
	if k.NSplits < 2 {
		return nil, errors.NewValidationError("n_splits", "must be at least 2", k.NSplits)
	}
	if n < k.NSplits {
		return nil, errors.NewValueError("KFold.Split", "cannot have more splits than samples")
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if k.Shuffle {
		rng := rand.New(rand.NewPCG(k.Seed, 0x9e3779b97f4a7c15))
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}

	folds := make([]Fold, 0, k.NSplits)
	start := 0
	for f := 0; f < k.NSplits; f++ {
		size := n / k.NSplits
		if f < n%k.NSplits {
			size++
		}
		test := append([]int(nil), idx[start:start+size]...)
		train := make([]int, 0, n-size)
		train = append(train, idx[:start]...)
		train = append(train, idx[start+size:]...)
		folds = append(folds, Fold{Train: train, Test: test})
		start += size
	}
	return folds, nil
}

// selectRows copies rows idx of X and y.
func selectRows(X mat.Matrix, y mat.Vector, idx []int) (*mat.Dense, *mat.VecDense) {
	_, c := X.Dims()
	Xs := mat.NewDense(len(idx), c, nil)
	ys := mat.NewVecDense(len(idx), nil)
	for k, i := range idx {
		for j := 0; j < c; j++ {
			Xs.Set(k, j, X.At(i, j))
		}
		ys.SetVec(k, y.AtVec(i))
	}
	return Xs, ys
}
