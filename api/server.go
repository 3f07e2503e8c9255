// Package api serves the pipeline and the search operations of the configured ensembles over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"text2phenotype.com/ner/classifier"
	"text2phenotype.com/ner/pipeline"
	"text2phenotype.com/ner/sequence"
	"text2phenotype.com/ner/types"
)

const (
	RequestIDHeader = "X-Request-Id"
	defaultK        = 5
	maxK            = 1000

	DefaultMaxBodyBytes = 10 << 20
)

// Searcher is an ensemble seen through its k-best and search graph operations.
type Searcher interface {
	Name() string
	KBest(doc *types.Document, k int) ([]classifier.ScoredDocument, error)
	SearchGraph(doc *types.Document) (*sequence.Lattice, error)
}

type Server struct {
	Pipeline  pipeline.Pipeline
	Searchers map[string]Searcher
	// MaxBodyBytes caps request bodies; larger ones get 413.
	MaxBodyBytes int64
}

func NewServer(ppln pipeline.Pipeline, searchers ...Searcher) *Server {
	server := &Server{
		Pipeline:     ppln,
		Searchers:    make(map[string]Searcher, len(searchers)),
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, s := range searchers {
		server.Searchers[s.Name()] = s
	}
	return server
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.ProcessData)
	mux.HandleFunc("/classify", s.ProcessData)
	mux.HandleFunc("/kbest", s.KBest)
	mux.HandleFunc("/lattice", s.Lattice)
	mux.HandleFunc("/health", s.Health)
	return mux
}

func requestID(r *http.Request) string {
	if tid := r.Header.Get(RequestIDHeader); tid != "" {
		return tid
	}
	return uuid.NewString()
}

// readBody checks the method and reads the body; on failure the response is already written.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger) (string, bool) {
	if r.Method != http.MethodPost {
		logger.Error().Int("status", http.StatusMethodNotAllowed).Msg("Only 'POST' method is allowed here")
		http.Error(w, "", http.StatusMethodNotAllowed)
		return "", false
	}
	if s.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
	}
	msg, err := io.ReadAll(r.Body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Err(err).Int("status", http.StatusRequestEntityTooLarge).Int64("limit", tooLarge.Limit).Msg("Request body too large")
		http.Error(w, "", http.StatusRequestEntityTooLarge)
		return "", false
	}
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Could not read request body")
		http.Error(w, "", http.StatusBadRequest)
		return "", false
	}
	return string(msg), true
}

// ProcessData runs the pipeline over the body. The format query parameter selects "text" or "columns".
func (s *Server) ProcessData(w http.ResponseWriter, r *http.Request) {
	tid := requestID(r)
	logger := makeRequestLogger(r, tid)
	text, ok := s.readBody(w, r, &logger)
	if !ok {
		return
	}
	format, err := pipeline.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		logger.Err(err).Int("status", http.StatusBadRequest).Msg("Bad request format")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request := pipeline.Request{Tid: tid, Text: text, Format: format}
	logger.Info().Msg("Starting pipeline for request from API")
	resp := <-s.Pipeline(request)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, tid)
	_, _ = w.Write([]byte(resp))
	logger.Info().Int("status", http.StatusOK).Msg("Finished processing request")
}

// searchTarget resolves the config query parameter and turns the body into one document.
func (s *Server) searchTarget(w http.ResponseWriter, r *http.Request, tid string, logger *zerolog.Logger) (Searcher, *types.Document, bool) {
	text, ok := s.readBody(w, r, logger)
	if !ok {
		return nil, nil, false
	}
	name := r.URL.Query().Get("config")
	searcher, found := s.Searchers[name]
	if !found {
		logger.Error().Str("config_name", name).Int("status", http.StatusNotFound).Msg("Unknown configuration")
		http.Error(w, fmt.Sprintf("unknown configuration %q", name), http.StatusNotFound)
		return nil, nil, false
	}
	return searcher, types.NewDocument(tid, strings.Fields(text)), true
}

func writeSearchError(w http.ResponseWriter, err error, logger *zerolog.Logger) {
	status := http.StatusInternalServerError
	if errors.Is(err, classifier.ErrUnsupported) {
		status = http.StatusNotImplemented
	}
	logger.Err(err).Int("status", status).Msg("Search failed")
	http.Error(w, err.Error(), status)
}

type kBestResponse struct {
	Labels []string `json:"labels"`
	Score  float64  `json:"score"`
}

// KBest returns the k best labellings of the body, one document of whitespace separated tokens.
func (s *Server) KBest(w http.ResponseWriter, r *http.Request) {
	tid := requestID(r)
	logger := makeRequestLogger(r, tid)
	searcher, doc, ok := s.searchTarget(w, r, tid, &logger)
	if !ok {
		return
	}
	k := defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxK {
			logger.Error().Str("k", raw).Int("status", http.StatusBadRequest).Msg("Bad k")
			http.Error(w, fmt.Sprintf("k must be an integer in [1, %d]", maxK), http.StatusBadRequest)
			return
		}
		k = parsed
	}

	scored, err := searcher.KBest(doc, k)
	if err != nil {
		writeSearchError(w, err, &logger)
		return
	}
	response := make([]kBestResponse, len(scored))
	for i, sd := range scored {
		response[i] = kBestResponse{Labels: sd.Document.Labels(types.SlotAnswer), Score: sd.Score}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, tid)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Err(err).Msg("Failed to write response")
		return
	}
	logger.Info().Int("status", http.StatusOK).Int("k", k).Int("results", len(response)).Msg("Finished k-best request")
}

// Lattice writes the search graph of the body in AT&T FSM text format.
func (s *Server) Lattice(w http.ResponseWriter, r *http.Request) {
	tid := requestID(r)
	logger := makeRequestLogger(r, tid)
	searcher, doc, ok := s.searchTarget(w, r, tid, &logger)
	if !ok {
		return
	}
	lattice, err := searcher.SearchGraph(doc)
	if err != nil {
		writeSearchError(w, err, &logger)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(RequestIDHeader, tid)
	if err := lattice.WriteFSM(w); err != nil {
		logger.Err(err).Msg("Failed to write lattice")
		return
	}
	logger.Info().Int("status", http.StatusOK).Int("states", len(lattice.States)).Msg("Finished lattice request")
}

func (s *Server) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "configurations": len(s.Searchers)})
}
