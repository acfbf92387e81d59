package basis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

// ApplyIdentifiabilityConstraints mean-centres the columns of X (ignoring
// NaN) and drops trailing columns until [1, X] has full column rank.
//
// Spline bases sum to one, so together with an intercept they are rank
// deficient; the returned matrix makes the GLM maximum-likelihood solution
// unique.
func ApplyIdentifiabilityConstraints(X mat.Matrix) *mat.Dense {
	r, c := X.Dims()
	centred := mat.DenseCopyOf(X)
	for j := 0; j < c; j++ {
		sum, n := 0.0, 0
		for i := 0; i < r; i++ {
			if v := centred.At(i, j); !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum / float64(n)
		for i := 0; i < r; i++ {
			centred.Set(i, j, centred.At(i, j)-mean)
		}
	}

	// 初回のランクは中心化前の行列で計算する
	rank := matrixRank(withConstant(X, c))
	cols := c
	for cols > 0 && rank < cols+1 {
		cols--
		rank = matrixRank(withConstant(centred, cols))
	}
	if cols == 0 {
		return &mat.Dense{}
	}
	return mat.DenseCopyOf(centred.Slice(0, r, 0, cols))
}

// withConstant returns [1, X[:, :cols]] restricted to rows without NaN.
func withConstant(X mat.Matrix, cols int) *mat.Dense {
	r, _ := X.Dims()
	rows := make([]int, 0, r)
	for i := 0; i < r; i++ {
		ok := true
		for j := 0; j < cols; j++ {
			if math.IsNaN(X.At(i, j)) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	out := mat.NewDense(len(rows), cols+1, nil)
	for k, i := range rows {
		out.Set(k, 0, 1)
		for j := 0; j < cols; j++ {
			out.Set(k, j+1, X.At(i, j))
		}
	}
	return out
}

// matrixRank counts singular values above max(s)·max(m, n)·eps.
func matrixRank(m *mat.Dense) int {
	if m == nil {
		return 0
	}
	r, c := m.Dims()
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDNone) {
		return 0
	}
	return rankFromValues(svd.Values(nil), r, c)
}

func rankFromValues(s []float64, r, c int) int {
	if len(s) == 0 {
		return 0
	}
	tol := s[0] * float64(max(r, c)) * 2.220446049250313e-16
	rank := 0
	for _, v := range s {
		if v > tol {
			rank++
		}
	}
	return rank
}

// SplitByFeature splits the columns of X into one block per component of b.
//
// Leaves and products form a single block keyed by label; sums are split
// into their components. Duplicate labels get a "-1", "-2", ... suffix.
func SplitByFeature(b Basis, X mat.Matrix) (map[string]*mat.Dense, error) {
	r, c := X.Dims()
	blocks := b.blocks()
	total := 0
	for _, bl := range blocks {
		total += bl.width
	}
	if c != total {
		return nil, errors.NewValueError("basis.SplitByFeature", fmt.Sprintf(
			"`x.shape[axis]` does not match the expected number of features. "+
				"`x.shape[axis] == %d`, while the expected number of features is %d", c, total))
	}

	dense := mat.DenseCopyOf(X)
	out := make(map[string]*mat.Dense, len(blocks))
	start := 0
	for _, bl := range blocks {
		key := bl.label
		if _, exists := out[key]; exists {
			key = uniqueKey(out, bl.label)
		}
		out[key] = mat.DenseCopyOf(dense.Slice(0, r, start, start+bl.width))
		start += bl.width
	}
	return out, nil
}

func uniqueKey(existing map[string]*mat.Dense, key string) string {
	for extra := 1; ; extra++ {
		candidate := fmt.Sprintf("%s-%d", key, extra)
		if _, ok := existing[candidate]; !ok {
			return candidate
		}
	}
}
