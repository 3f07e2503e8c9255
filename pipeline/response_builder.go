package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"text2phenotype.com/ner/runner"
	"text2phenotype.com/ner/scoring"
	"text2phenotype.com/ner/types"
)

const errorKey = types.ReservedConfigurationName

var (
	ErrRequest       = errors.New("request could not be read")
	ErrConfiguration = errors.New("configuration failed")
)

type Result struct {
	ConfigName string
	Data       interface{}
}

type EntityResponse struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Begin int32  `json:"begin"`
	Until int32  `json:"until"`
}

type DocumentResponse struct {
	ID       string           `json:"id"`
	Labels   []string         `json:"labels"`
	Entities []EntityResponse `json:"entities"`
}

type StatsResponse struct {
	Documents       int     `json:"documents"`
	Tokens          int     `json:"tokens"`
	Failed          int     `json:"failed"`
	Seconds         float64 `json:"seconds"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

type ScoresResponse struct {
	Micro   scoring.Scores            `json:"micro"`
	Macro   scoring.Scores            `json:"macro"`
	PerType map[string]scoring.Scores `json:"per_type"`
}

// ConfigurationResponse is the part of a pipeline response produced by one ensemble.
// Scores are present only when the request carried gold labels.
type ConfigurationResponse struct {
	DocId     string             `json:"doc_id"`
	Documents []DocumentResponse `json:"documents"`
	Scores    *ScoresResponse    `json:"scores,omitempty"`
	Stats     StatsResponse      `json:"stats"`
	Error     string             `json:"error,omitempty"`
}

func NewDocumentResponse(doc *types.Document, background string) DocumentResponse {
	labels := doc.Labels(types.SlotAnswer)
	entities := scoring.Entities(labels, background)
	response := DocumentResponse{
		ID:       doc.ID,
		Labels:   labels,
		Entities: make([]EntityResponse, len(entities)),
	}
	for i, entity := range entities {
		words := make([]string, 0, entity.End-entity.Start)
		for _, token := range doc.Tokens[entity.Start:entity.End] {
			words = append(words, token.Text)
		}
		response.Entities[i] = EntityResponse{
			Type:  entity.Type,
			Text:  strings.Join(words, " "),
			Start: entity.Start,
			End:   entity.End,
			Begin: doc.Tokens[entity.Start].Begin,
			Until: doc.Tokens[entity.End-1].End,
		}
	}
	return response
}

func newScoresResponse(counts *scoring.Counts) *ScoresResponse {
	response := &ScoresResponse{
		Micro:   counts.Micro(),
		Macro:   counts.Macro(),
		PerType: make(map[string]scoring.Scores),
	}
	for _, entityType := range counts.Types() {
		response.PerType[entityType] = counts.Scores(entityType)
	}
	return response
}

func newStatsResponse(stats runner.Stats) StatsResponse {
	return StatsResponse{
		Documents:       stats.Documents,
		Tokens:          stats.Tokens,
		Failed:          stats.Failed,
		Seconds:         stats.Elapsed.Seconds(),
		TokensPerSecond: stats.TokensPerSecond(),
	}
}

// NewEnsembleResult runs one ensemble over its copy of the request documents and
// reports the labelled documents under the ensemble's name.
func NewEnsembleResult(threads int) func(ctx context.Context, e Ensemble, in <-chan *types.Document, request Request, scored bool) <-chan Result {

	return func(ctx context.Context, e Ensemble, in <-chan *types.Document, request Request, scored bool) <-chan Result {
		out := make(chan Result)
		go func() {
			defer close(out)
			response := ConfigurationResponse{DocId: request.Tid, Documents: []DocumentResponse{}}

			var mu sync.Mutex
			write := func(doc *types.Document) error {
				mu.Lock()
				defer mu.Unlock()
				response.Documents = append(response.Documents, NewDocumentResponse(doc, e.Background()))
				return nil
			}
			counts, stats, err := e.ClassifyAndCount(ctx, in, write, threads)
			// the splitter must never block on an abandoned channel
			for range in {
			}
			response.Stats = newStatsResponse(stats)
			if err != nil {
				response.Error = err.Error()
			} else if scored {
				response.Scores = newScoresResponse(counts)
			}

			out <- Result{
				ConfigName: e.Name(),
				Data:       response,
			}
		}()
		return out
	}
}

// ParseResponse decodes a pipeline response. A request that could not be read, or any
// configuration that failed, is an error.
func ParseResponse(response string) (map[string]ConfigurationResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(response), &raw); err != nil {
		return nil, fmt.Errorf("malformed pipeline response: %w", err)
	}
	if msg, ok := raw[errorKey]; ok {
		var text string
		_ = json.Unmarshal(msg, &text)
		return nil, fmt.Errorf("%w: %s", ErrRequest, text)
	}
	result := make(map[string]ConfigurationResponse, len(raw))
	var failed []string
	for name, msg := range raw {
		var cfgResponse ConfigurationResponse
		if err := json.Unmarshal(msg, &cfgResponse); err != nil {
			return nil, fmt.Errorf("configuration %q: %w", name, err)
		}
		if cfgResponse.Error != "" {
			failed = append(failed, fmt.Sprintf("%s: %s", name, cfgResponse.Error))
		}
		result[name] = cfgResponse
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		return result, fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(failed, "; "))
	}
	return result, nil
}
