package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"text2phenotype.com/ner/api"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/pipeline"
	"text2phenotype.com/ner/worker"
)

type Config struct {
	ConfigPath          string `envconfig:"NER_CONFIG_PATH" required:"true"`
	ModelDir            string `envconfig:"NER_MODEL_DIR" default:""`
	Threads             int    `envconfig:"NER_THREADS" default:"4"`
	RestAPIActive       bool   `envconfig:"NER_REST_API_ACTIVE" default:"false"`
	RestAPIPort         string `envconfig:"NER_REST_API_PORT" default:"10000"`
	RestAPIMaxBodyBytes int64  `envconfig:"NER_REST_API_MAX_BODY_BYTES" default:"10485760"`
	WorkerActive        bool   `envconfig:"NER_WORKER_ACTIVE" default:"true"`
}

const (
	pipelineStartMaxRetries = 5
	retryDelay              = 5 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queue worker and, if enabled, the REST API",
		Long: `Loads every ensemble configuration under NER_CONFIG_PATH, then consumes labelling
tasks from RabbitMQ. NER_REST_API_ACTIVE=true also serves /classify, /kbest and /lattice
on NER_REST_API_PORT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var config Config
			if err := envconfig.Process("", &config); err != nil {
				return fmt.Errorf("failed to read environment: %w", err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config)
		},
	}
}

func serve(ctx context.Context, config Config) error {
	nerLogger := logger.NewLogger("Main")
	params := pipeline.Params{ConfigPath: config.ConfigPath, ModelDir: config.ModelDir, Threads: config.Threads}

	var (
		server *api.Server
		ppln   pipeline.Pipeline
	)
	for retry := 0; ; retry++ {
		ensembles, err := pipeline.LoadEnsembles(params)
		if err == nil {
			searchers := make([]api.Searcher, len(ensembles))
			for i, e := range ensembles {
				searchers[i] = e
			}
			ppln = pipeline.FromEnsembles(ensembles, config.Threads)
			server = api.NewServer(ppln, searchers...)
			server.MaxBodyBytes = config.RestAPIMaxBodyBytes
			nerLogger.Info().Int("configurations", len(ensembles)).Msg("Pipelines loaded")
			break
		}
		if retry+1 >= pipelineStartMaxRetries {
			return fmt.Errorf("could not start pipelines after %d retries: %w", pipelineStartMaxRetries, err)
		}
		nerLogger.Err(err).Msg("Failed to load ensembles. Retrying in 5 sec")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryDelay):
		}
	}

	if config.RestAPIActive {
		httpServer := &http.Server{Addr: fmt.Sprintf(":%s", config.RestAPIPort), Handler: server.Routes()}
		go func() {
			nerLogger.Info().Str("addr", httpServer.Addr).Msg("Starting API service")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				nerLogger.Err(err).Msg("REST API stopped with error")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), retryDelay)
			defer cancel()
			_ = httpServer.Shutdown(shutdownCtx)
		}()
	}

	if !config.WorkerActive {
		<-ctx.Done()
		return nil
	}
	nerLogger.Info().Msg("Start NER Worker")
	for ctx.Err() == nil {
		rmqWorker, err := worker.New(ppln)
		if err != nil {
			return fmt.Errorf("could not initialize RMQ worker: %w", err)
		}
		if err = rmqWorker.StartWorker(ctx); err != nil {
			nerLogger.Err(err).Msg("Worker returned with error. Launching new in 5 seconds")
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}
	}
	return nil
}
