package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/scoring"
	"text2phenotype.com/ner/types"
)

func makeDocs(n int) <-chan *types.Document {
	docs := make(chan *types.Document, n)
	for i := 0; i < n; i++ {
		doc := types.NewDocument(fmt.Sprintf("doc-%03d", i), []string{"John", "Smith", "visited", fmt.Sprint(i)})
		_ = doc.SetLabels(types.SlotGoldAnswer, []string{"PER", "PER", "O", "O"})
		docs <- doc
	}
	close(docs)
	return docs
}

func ids(docs []*types.Document) []string {
	result := make([]string, len(docs))
	for i, doc := range docs {
		result[i] = doc.ID
	}
	return result
}

func expectedIDs(n int, skip ...int) []string {
	skipped := make(map[int]bool)
	for _, s := range skip {
		skipped[s] = true
	}
	var result []string
	for i := 0; i < n; i++ {
		if !skipped[i] {
			result = append(result, fmt.Sprintf("doc-%03d", i))
		}
	}
	return result
}

type collector struct {
	mu      sync.Mutex
	written []*types.Document
}

func (c *collector) write(doc *types.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, doc)
	return nil
}

func labelAsGold(_ context.Context, doc *types.Document) (*types.Document, error) {
	out := doc.Clone()
	if err := out.SetLabels(types.SlotAnswer, doc.Labels(types.SlotGoldAnswer)); err != nil {
		return nil, err
	}
	return out, nil
}

func quietRunner(threads int, opts ...Option) (*Runner, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logger.NewLoggerTo(&buf, "Test Runner")
	return New(threads, append(opts, WithLogger(&l))...), &buf
}

func TestRunPreservesOrder(t *testing.T) {
	for _, threads := range []int{0, 1, 2, 8} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			r, _ := quietRunner(threads)
			var delays sync.Map
			rnd := rand.New(rand.NewSource(int64(threads)))
			for i := 0; i < 60; i++ {
				delays.Store(fmt.Sprintf("doc-%03d", i), time.Duration(rnd.Intn(3000))*time.Microsecond)
			}
			classify := func(ctx context.Context, doc *types.Document) (*types.Document, error) {
				d, _ := delays.Load(doc.ID)
				time.Sleep(d.(time.Duration))
				return labelAsGold(ctx, doc)
			}

			var c collector
			stats, err := r.Run(context.Background(), makeDocs(60), classify, c.write)
			require.NoError(t, err)
			assert.Equal(t, expectedIDs(60), ids(c.written))
			assert.Equal(t, 60, stats.Documents)
			assert.Equal(t, 240, stats.Tokens)
			assert.Equal(t, 0, stats.Failed)
			assert.True(t, stats.Elapsed > time.Duration(0), "elapsed %v should be positive", stats.Elapsed)
		})
	}
}

func TestRunSkipsFailures(t *testing.T) {
	for _, threads := range []int{1, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			r, logs := quietRunner(threads)
			classify := func(ctx context.Context, doc *types.Document) (*types.Document, error) {
				switch doc.ID {
				case "doc-003":
					return nil, errors.New("model exploded")
				case "doc-005":
					panic("index out of range")
				case "doc-007":
					return types.NewDocument(doc.ID, []string{"short"}), nil
				}
				return labelAsGold(ctx, doc)
			}

			var c collector
			stats, err := r.Run(context.Background(), makeDocs(10), classify, c.write)
			require.NoError(t, err)
			assert.Equal(t, expectedIDs(10, 3, 5, 7), ids(c.written))
			assert.Equal(t, 7, stats.Documents)
			assert.Equal(t, 3, stats.Failed)

			out := logs.String()
			assert.Contains(t, out, "model exploded")
			assert.Contains(t, out, "got panic: index out of range")
			assert.Contains(t, out, `"document":"doc-003"`)
			assert.Contains(t, out, `"tokens":4`)
			assert.Contains(t, out, "John Smith visited 3")
		})
	}
}

func TestRunSkipsNilDocuments(t *testing.T) {
	for _, threads := range []int{1, 4} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			r, logs := quietRunner(threads)
			docs := make(chan *types.Document, 5)
			for _, doc := range []*types.Document{nil, types.NewDocument("a", []string{"x"}), nil, types.NewDocument("b", []string{"y"}), nil} {
				docs <- doc
			}
			close(docs)

			var c collector
			stats, err := r.Run(context.Background(), docs, labelAsGold, c.write)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ids(c.written))
			assert.Equal(t, 2, stats.Documents)
			assert.Zero(t, stats.Failed)
			assert.Contains(t, logs.String(), "Skipping nil document")
		})
	}
}

func TestRunScoresBeforeWriting(t *testing.T) {
	scorer := scoring.NewScorer("O")
	r, _ := quietRunner(3, WithScorer(scorer))
	var c collector
	_, err := r.Run(context.Background(), makeDocs(12), labelAsGold, c.write)
	require.NoError(t, err)
	assert.Equal(t, 12, scorer.Documents())
	assert.Equal(t, 12, scorer.Counts().TP["PER"])
	assert.Equal(t, 1.0, scorer.Counts().Micro().F1)
}

func TestRunCancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		for _, threads := range []int{1, 4} {
			r, _ := quietRunner(threads)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			var c collector
			stats, err := r.Run(ctx, makeDocs(10), labelAsGold, c.write)
			assert.True(t, IsCancelled(err), "got %v", err)
			assert.Empty(t, c.written)
			assert.Equal(t, 0, stats.Documents)
		}
	})

	t.Run("cancelled while running", func(t *testing.T) {
		for _, threads := range []int{1, 4} {
			r, _ := quietRunner(threads)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			// later documents wait until the first one has been written and the run cancelled
			gate := make(chan struct{})
			var once sync.Once
			classify := func(ctx context.Context, doc *types.Document) (*types.Document, error) {
				if doc.ID != "doc-000" {
					<-gate
				}
				return labelAsGold(ctx, doc)
			}
			var c collector
			write := func(doc *types.Document) error {
				cancel()
				once.Do(func() { close(gate) })
				return c.write(doc)
			}
			_, err := r.Run(ctx, makeDocs(100), classify, write)
			assert.True(t, IsCancelled(err), "got %v", err)
			require.NotEmpty(t, c.written)
			assert.Less(t, len(c.written), 100)
			assert.Equal(t, expectedIDs(len(c.written)), ids(c.written), "written documents form a prefix")
		}
	})
}

func TestRunStopsOnWriteError(t *testing.T) {
	for _, threads := range []int{1, 4} {
		r, _ := quietRunner(threads)
		writes := 0
		write := func(doc *types.Document) error {
			writes++
			if writes == 3 {
				return errors.New("disk full")
			}
			return nil
		}
		stats, err := r.Run(context.Background(), makeDocs(50), labelAsGold, write)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "disk full"))
		assert.Equal(t, 3, writes)
		assert.Equal(t, 2, stats.Documents)
	}
}

func TestTokensPerSecond(t *testing.T) {
	assert.Equal(t, 0.0, Stats{Tokens: 10}.TokensPerSecond())
	assert.InDelta(t, 20.0, Stats{Tokens: 10, Elapsed: 500 * time.Millisecond}.TokensPerSecond(), 1e-9)
}
