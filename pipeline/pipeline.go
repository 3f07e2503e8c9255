// Package pipeline labels the text of one request with every configured ensemble and
// builds a JSON response keyed by configuration name.
package pipeline

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"text2phenotype.com/ner/classifier"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/runner"
	"text2phenotype.com/ner/scoring"
	"text2phenotype.com/ner/types"
)

type Pipeline func(request Request) <-chan string

// Ensemble is what the pipeline needs from a configured ensemble.
type Ensemble interface {
	Name() string
	Background() string
	ClassifyAndCount(ctx context.Context, docs <-chan *types.Document, write runner.WriteFunc, threads int) (*scoring.Counts, runner.Stats, error)
}

type Params struct {
	ConfigPath string `json:"config_path"`
	ModelDir   string `json:"model_dir"`
	Threads    int    `json:"threads"`
}

// LoadEnsembles reads every configuration under params.ConfigPath and loads its models.
func LoadEnsembles(params Params) ([]*classifier.Ensemble, error) {
	nerLogger := logger.NewLogger("LoadEnsembles")
	configs, err := types.LoadConfigurations(params.ConfigPath)
	if err != nil {
		nerLogger.Err(err).Str("config_path", params.ConfigPath).Msg("Failed to load configurations")
		return nil, err
	}
	loader := classifier.NewFileLoader(params.ModelDir)
	ensembles := make([]*classifier.Ensemble, len(configs))
	for i, cfg := range configs {
		ensLogger := logger.NewLogger("Ensemble").With().Str("config_name", cfg.Name).Logger()
		ensembles[i], err = classifier.NewEnsembleFromConfig(cfg, loader, classifier.WithEnsembleLogger(&ensLogger))
		if err != nil {
			nerLogger.Err(err).Str("config_name", cfg.Name).Msg("Failed to create ensemble")
			return nil, err
		}
		nerLogger.Info().
			Str("config_name", cfg.Name).
			Str("combination_mode", cfg.CombinationMode.String()).
			Int("classifiers", len(ensembles[i].Classifiers())).
			Msg("Loaded ensemble")
	}
	return ensembles, nil
}

// FromEnsembles returns the pipeline over loaded ensembles, in configuration order.
func FromEnsembles(ensembles []*classifier.Ensemble, threads int) Pipeline {
	list := make([]Ensemble, len(ensembles))
	for i, e := range ensembles {
		list[i] = e
	}
	return New(list, threads)
}

// New returns a pipeline running every ensemble concurrently over the request documents.
// The response maps configuration names to ConfigurationResponse values.
func New(ensembles []Ensemble, threads int) Pipeline {
	nerLogger := logger.NewLogger("NER pipeline")
	tokenizer := NewTokenizer()
	splitter := NewDocumentChannelSplitter(len(ensembles))
	ensembleResult := NewEnsembleResult(threads)

	return func(request Request) <-chan string {
		responseChan := make(chan string, 1)
		pplnLog := nerLogger.With().Str("tid", request.Tid).Logger()
		pplnLog.Info().Msg("Started NER pipeline")
		errLogger := pplnLog.With().Caller().Logger()

		go func() {
			response := make(map[string]interface{})
			docs, err := tokenizer(request)
			if err != nil {
				errLogger.Err(err).Msg("Failed to read request documents")
				response[errorKey] = err.Error()
				responseChan <- marshal(response, errLogger)
				return
			}
			scored := len(docs) > 0
			for _, doc := range docs {
				scored = scored && doc.HasGold()
			}

			in := make(chan *types.Document)
			split := splitter(in)

			resultChannel := make(chan Result)
			for i, e := range ensembles {
				connect(ensembleResult(context.Background(), e, split[i], request, scored), resultChannel)
			}

			for _, doc := range docs {
				in <- doc
			}
			close(in)

			for i := 0; i < len(ensembles); i++ {
				res := <-resultChannel
				pplnLog.Info().
					Str("config_name", res.ConfigName).
					Msg("Finished pipeline for configuration")
				response[res.ConfigName] = res.Data
			}
			pplnLog.Info().Int("documents", len(docs)).Msg("Finished NER pipeline")
			responseChan <- marshal(response, errLogger)
		}()

		return responseChan
	}
}

func marshal(response map[string]interface{}, errLogger zerolog.Logger) string {
	buf, err := json.Marshal(response)
	if err != nil {
		errLogger.Err(err).Msg("Failed to marshall response")
	}
	return string(buf)
}

func connect(from <-chan Result, to chan<- Result) {
	go func() {
		for v := range from {
			to <- v
		}
	}()
}
