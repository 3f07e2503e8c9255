// Package runner classifies a stream of documents on a pool of goroutines and hands the results
// to a writer in the order the documents arrived.
package runner

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/scoring"
	"text2phenotype.com/ner/types"
	"text2phenotype.com/ner/utils"
)

const previewWords = 10

// ClassifyFunc labels one document. It may return doc itself or a labelled copy of it.
type ClassifyFunc func(ctx context.Context, doc *types.Document) (*types.Document, error)

type WriteFunc func(doc *types.Document) error

type Stats struct {
	Documents int           `json:"documents"`
	Tokens    int           `json:"tokens"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

func (stats Stats) TokensPerSecond() float64 {
	if stats.Elapsed <= 0 {
		return 0
	}
	return float64(stats.Tokens) / stats.Elapsed.Seconds()
}

type Runner struct {
	threads   int
	scorer    *scoring.Scorer
	nerLogger *zerolog.Logger
}

type Option func(*Runner)

// WithScorer feeds every successfully classified document that has gold labels to scorer
// before it is written.
func WithScorer(scorer *scoring.Scorer) Option {
	return func(r *Runner) {
		r.scorer = scorer
	}
}

func WithLogger(l *zerolog.Logger) Option {
	return func(r *Runner) {
		r.nerLogger = l
	}
}

// New returns a runner with threads workers. With threads <= 1 documents are processed
// one at a time on the calling goroutine.
func New(threads int, opts ...Option) *Runner {
	r := &Runner{threads: threads}
	for _, opt := range opts {
		opt(r)
	}
	if r.nerLogger == nil {
		l := logger.NewLogger("Runner")
		r.nerLogger = &l
	}
	return r
}

type result struct {
	seq   int
	input *types.Document
	doc   *types.Document
	err   error
}

func (res result) Less(o interface{}) bool {
	c, isOk := o.(result)
	if !isOk {
		return false
	}
	return res.seq < c.seq
}

func classifyOne(ctx context.Context, classify ClassifyFunc, doc *types.Document) (out *types.Document, err error) {
	defer utils.RecoverWithError(&err)
	out, err = classify(ctx, doc)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = doc
	}
	if out.Len() != doc.Len() {
		return nil, fmt.Errorf("%w: classified %d tokens into %d", types.ErrLengthMismatch, doc.Len(), out.Len())
	}
	return out, nil
}

// Run classifies every document from docs and writes the results in arrival order.
// A document whose classification fails or panics is logged and skipped. Cancelling ctx stops
// dispatch of further documents; those already dispatched are still written. A write error
// stops the run and is returned.
func (r *Runner) Run(ctx context.Context, docs <-chan *types.Document, classify ClassifyFunc, write WriteFunc) (Stats, error) {
	start := time.Now()
	var stats Stats
	var err error
	if r.threads <= 1 {
		err = r.runSync(ctx, docs, classify, write, &stats)
	} else {
		err = r.runPool(ctx, docs, classify, write, &stats)
	}
	stats.Elapsed = time.Since(start)

	r.nerLogger.Info().
		Int("documents", stats.Documents).
		Int("tokens", stats.Tokens).
		Int("failed", stats.Failed).
		Dur("elapsed", stats.Elapsed).
		Float64("tokens_per_second", stats.TokensPerSecond()).
		Msg("Finished batch")
	return stats, err
}

func (r *Runner) runSync(ctx context.Context, docs <-chan *types.Document, classify ClassifyFunc, write WriteFunc, stats *Stats) error {
	for seq := 0; ; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc, ok := <-docs
		if !ok {
			return nil
		}
		if doc == nil {
			r.skipNil()
			continue
		}
		out, err := classifyOne(ctx, classify, doc)
		if writeErr := r.release(result{seq: seq, input: doc, doc: out, err: err}, write, stats); writeErr != nil {
			return writeErr
		}
	}
}

func (r *Runner) runPool(ctx context.Context, docs <-chan *types.Document, classify ClassifyFunc, write WriteFunc, stats *Stats) error {
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	type job struct {
		seq int
		doc *types.Document
	}
	jobs := make(chan job, r.threads)
	results := make(chan result, r.threads)

	var wg sync.WaitGroup
	for i := 0; i < r.threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out, err := classifyOne(ctx, classify, j.doc)
				results <- result{seq: j.seq, input: j.doc, doc: out, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for seq := 0; ; {
			if dispatchCtx.Err() != nil {
				return
			}
			var doc *types.Document
			var ok bool
			select {
			case doc, ok = <-docs:
				if !ok {
					return
				}
			case <-dispatchCtx.Done():
				return
			}
			if doc == nil {
				r.skipNil()
				continue
			}
			select {
			case jobs <- job{seq: seq, doc: doc}:
				seq++
			case <-dispatchCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	// completed documents wait here until every earlier one has been released
	pending := make(utils.PriorityQueue, 0, r.threads)
	next := 0
	var writeErr error
	for res := range results {
		heap.Push(&pending, res)
		for len(pending) > 0 && pending.Peek().(result).seq == next {
			ready := heap.Pop(&pending).(result)
			next++
			if writeErr != nil {
				continue
			}
			if writeErr = r.release(ready, write, stats); writeErr != nil {
				stopDispatch()
			}
		}
	}

	if writeErr != nil {
		return writeErr
	}
	return ctx.Err()
}

// skipNil drops a nil document before it takes a sequence number.
func (r *Runner) skipNil() {
	r.nerLogger.Warn().Msg("Skipping nil document")
}

func (r *Runner) release(res result, write WriteFunc, stats *Stats) error {
	if res.err != nil {
		stats.Failed++
		r.nerLogger.Warn().
			Err(res.err).
			Str("document", res.input.ID).
			Int("tokens", res.input.Len()).
			Str("preview", res.input.Preview(previewWords)).
			Msg("Skipping document that failed to classify")
		return nil
	}
	if r.scorer != nil && res.doc.HasGold() {
		r.scorer.ScoreDocument(res.doc)
	}
	if err := write(res.doc); err != nil {
		return fmt.Errorf("failed to write document %q: %w", res.doc.ID, err)
	}
	stats.Documents++
	stats.Tokens += res.doc.Len()
	return nil
}

// IsCancelled reports whether err ended a run because its context was cancelled.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
