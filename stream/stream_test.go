package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/basis"
	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/glm"
	"github.com/YuminosukeSato/glmgo/observation"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
)

func design(n int) (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, float64(i)/float64(n))
		y.SetVec(i, float64(i%3))
	}
	return X, y
}

func TestChunks(t *testing.T) {
	X, y := design(10)
	var sizes []int
	var first float64
	for b := range Chunks(context.Background(), X, y, 4) {
		r, _ := b.X.Dims()
		sizes = append(sizes, r)
		if len(sizes) == 2 {
			first = b.X.At(0, 0)
			assert.Equal(t, y.AtVec(4), b.Y.AtVec(0))
		}
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)
	assert.Equal(t, X.At(4, 0), first)
}

func TestChunksStopsOnCancel(t *testing.T) {
	X, y := design(10)
	ctx, cancel := context.WithCancel(context.Background())
	ch := Chunks(ctx, X, y, 2)
	<-ch
	cancel()
	n := 0
	for range ch {
		n++
	}
	assert.LessOrEqual(t, n, 1)
}

func TestPipelineTransformsAndCounts(t *testing.T) {
	X, y := design(12)
	b, err := basis.NewBSpline(5, basis.WithBounds(0, 1))
	require.NoError(t, err)
	tr := basis.NewTransformerBasis(b)
	require.NoError(t, tr.Fit(X))

	sp := NewPipeline(2, TransformStage{T: tr})
	var cols []int
	for batch := range sp.Run(context.Background(), Chunks(context.Background(), X, y, 5)) {
		_, c := batch.X.Dims()
		cols = append(cols, c)
	}
	require.NoError(t, sp.Err())
	assert.Equal(t, []int{5, 5, 5}, cols)
	m := sp.Metrics()
	assert.Equal(t, 3, m.Batches)
	assert.Equal(t, 12, m.Samples)
	assert.Equal(t, int64(12*5*8), m.Bytes)
}

type failingStage struct{}

func (failingStage) Process(*model.Batch) (*model.Batch, error) {
	return nil, errors.New("boom")
}

func TestPipelineStopsOnStageError(t *testing.T) {
	X, y := design(10)
	sp := NewPipeline(0)
	sp.AddStage(failingStage{})
	n := 0
	for range sp.Run(context.Background(), Chunks(context.Background(), X, y, 3)) {
		n++
	}
	assert.Equal(t, 0, n)
	assert.ErrorContains(t, sp.Err(), "boom")
	assert.Equal(t, 0, sp.Metrics().Batches)
}

func TestFeedsFitStream(t *testing.T) {
	X, y := design(60)
	b, err := basis.NewBSpline(4, basis.WithBounds(0, 1))
	require.NoError(t, err)
	g, err := glm.NewGLM(glm.WithRegularizer("Ridge"), glm.WithRegularizerStrength(0.1))
	require.NoError(t, err)

	ctx := context.Background()
	sp := NewPipeline(1, TransformStage{T: basis.NewTransformerBasis(b)})
	require.NoError(t, g.FitStream(ctx, sp.Run(ctx, Chunks(ctx, X, y, 20))))
	require.NoError(t, sp.Err())
	assert.Equal(t, 3, g.NIter())
	p, err := g.GetCoefAndIntercept()
	require.NoError(t, err)
	assert.Len(t, p.Coef, 4)
}

// closedWithin reads ch until it is closed and returns how many batches
// were still delivered.
func closedWithin(t *testing.T, ch <-chan *model.Batch, d time.Duration) int {
	t.Helper()
	n := 0
	timeout := time.After(d)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return n
			}
			n++
		case <-timeout:
			t.Fatal("stream goroutines still running")
			return n
		}
	}
}

func TestStopReleasesStream(t *testing.T) {
	X, y := design(100)
	sp := NewPipeline(0)
	out := sp.Stream(context.Background(), X, y, 5)
	<-out
	sp.Stop()
	sp.Stop()

	assert.LessOrEqual(t, closedWithin(t, out, 5*time.Second), 1)
	assert.NoError(t, sp.Err(), "Stop is not an error")
	assert.LessOrEqual(t, sp.Metrics().Batches, 2)
}

func TestStopAfterFitStreamError(t *testing.T) {
	X, y := design(60)
	g, err := glm.NewGLM(glm.WithObservationModel(observation.NewGamma(1)))
	require.NoError(t, err)

	ctx := context.Background()
	sp := NewPipeline(0)
	out := sp.Stream(ctx, X, y, 10)
	// y に 0 が含まれるので最初のバッチで失敗し、チャネルは読まれなくなる
	require.Error(t, g.FitStream(ctx, out))
	sp.Stop()

	closedWithin(t, out, 5*time.Second)
	assert.NoError(t, sp.Err())
}

func TestRunReportsParentCancel(t *testing.T) {
	X, y := design(100)
	ctx, cancel := context.WithCancel(context.Background())
	sp := NewPipeline(0)
	out := sp.Run(ctx, Chunks(ctx, X, y, 5))
	<-out
	cancel()

	closedWithin(t, out, 5*time.Second)
	assert.ErrorIs(t, sp.Err(), context.Canceled)
}
