// Package stream feeds model.Batch values to streaming estimators.
//
// A Pipeline splits a design into row chunks, runs each chunk through its
// stages (typically a fitted basis transformer) and hands the result to
// FitStream:
//
//	sp := stream.NewPipeline(256, stream.TransformStage{T: basis.NewTransformerBasis(b)})
//	defer sp.Stop()
//	err := g.FitStream(ctx, sp.Stream(ctx, X, y, 500))
//	if err == nil {
//	    err = sp.Err()
//	}
package stream

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glmgo/core/model"
	"github.com/YuminosukeSato/glmgo/pkg/errors"
	"github.com/YuminosukeSato/glmgo/pkg/log"
)

// Chunks sends consecutive row blocks of (X, y) of at most size rows.
// The channel is closed after the last block or when ctx is done.
func Chunks(ctx context.Context, X mat.Matrix, y mat.Vector, size int) <-chan *model.Batch {
	out := make(chan *model.Batch)
	go func() {
		defer close(out)
		if size <= 0 {
			return
		}
		r, c := X.Dims()
		for start := 0; start < r; start += size {
			if ctx.Err() != nil {
				return
			}
			end := min(start+size, r)
			xb := mat.NewDense(end-start, c, nil)
			for i := start; i < end; i++ {
				for j := 0; j < c; j++ {
					xb.Set(i-start, j, X.At(i, j))
				}
			}
			var yb mat.Vector
			if y != nil {
				v := mat.NewVecDense(end-start, nil)
				for i := start; i < end; i++ {
					v.SetVec(i-start, y.AtVec(i))
				}
				yb = v
			}
			select {
			case out <- &model.Batch{X: xb, Y: yb}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Stage transforms one batch.
type Stage interface {
	Process(b *model.Batch) (*model.Batch, error)
}

// TransformStage replaces X with T.Transform(X). T must already be fitted.
type TransformStage struct {
	T model.Transformer
}

func (s TransformStage) Process(b *model.Batch) (*model.Batch, error) {
	Xt, err := s.T.Transform(b.X)
	if err != nil {
		return nil, err
	}
	return &model.Batch{X: Xt, Y: b.Y}, nil
}

// Metrics counts what reached the end of the pipeline.
type Metrics struct {
	Batches int
	Samples int
	Bytes   int64
}

// Pipeline runs batches through its stages in order.
type Pipeline struct {
	bufferSize int
	stages     []Stage
	logger     log.Logger

	mu      sync.Mutex
	metrics Metrics
	err     error
	cancel  context.CancelCauseFunc
}

// errStopped is the cancellation cause used by Stop. It is not reported by Err.
var errStopped = errors.New("stream stopped by consumer")

// NewPipeline creates a pipeline whose output channel buffers bufferSize batches.
func NewPipeline(bufferSize int, stages ...Stage) *Pipeline {
	return &Pipeline{
		bufferSize: bufferSize,
		stages:     stages,
		logger:     log.GetLoggerWithName("stream"),
	}
}

// AddStage appends a stage.
func (p *Pipeline) AddStage(s Stage) {
	p.stages = append(p.stages, s)
}

// Stream splits (X, y) with Chunks and runs the chunks through the stages.
// Stop (or cancelling ctx) ends both goroutines, so a consumer that stops
// reading early should defer Stop.
func (p *Pipeline) Stream(ctx context.Context, X mat.Matrix, y mat.Vector, size int) <-chan *model.Batch {
	ctx, cancel := context.WithCancelCause(ctx)
	return p.run(ctx, cancel, Chunks(ctx, X, y, size))
}

// Run starts processing in and returns the output channel. On the first
// stage error, on Stop or when ctx is done the output is closed and the
// rest of in is drained, so the producer must close in. Chunks does so once
// its own context is done; prefer Stream, which shares one context with it.
func (p *Pipeline) Run(ctx context.Context, in <-chan *model.Batch) <-chan *model.Batch {
	ctx, cancel := context.WithCancelCause(ctx)
	return p.run(ctx, cancel, in)
}

// Stop ends the latest Run or Stream. It is safe to call more than once.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel(errStopped)
	}
}

func (p *Pipeline) run(ctx context.Context, cancel context.CancelCauseFunc, in <-chan *model.Batch) <-chan *model.Batch {
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	out := make(chan *model.Batch, p.bufferSize)
	go func() {
		defer close(out)
		defer cancel(nil)
		halt := func(err error) {
			if err != nil && !errors.Is(err, errStopped) {
				p.fail(err)
			}
			// 上流を止めてから残りを捨てる
			cancel(err)
			for range in {
			}
		}
		for b := range in {
			if ctx.Err() != nil {
				halt(context.Cause(ctx))
				return
			}
			cur := b
			for i, s := range p.stages {
				next, err := s.Process(cur)
				if err != nil {
					halt(errors.Wrapf(err, "stream stage %d", i))
					return
				}
				cur = next
			}
			select {
			case out <- cur:
				p.record(cur)
			case <-ctx.Done():
				halt(context.Cause(ctx))
				return
			}
		}
		// in は ctx の終了で閉じられることがある
		if err := context.Cause(ctx); err != nil && !errors.Is(err, errStopped) {
			p.fail(err)
		}
	}()
	return out
}

func (p *Pipeline) record(b *model.Batch) {
	r, c := b.X.Dims()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.Batches++
	p.metrics.Samples += r
	p.metrics.Bytes += int64(r) * int64(c) * 8
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err == nil {
		p.err = err
		p.logger.Error("stream stopped", err, "batches", p.metrics.Batches)
	}
}

// Err returns the error that stopped the pipeline, if any.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Metrics returns a snapshot of the counters.
func (p *Pipeline) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}
