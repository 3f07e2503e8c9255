// Package worker labels corpus chunks announced on the task queue and records the outcome
// in the shared task records.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"text2phenotype.com/ner/logger"
	"text2phenotype.com/ner/pipeline"
	"text2phenotype.com/ner/rmq"
	"text2phenotype.com/ner/s3client"
	"text2phenotype.com/ner/tasks"
)

type Config struct {
	TaskMaxRetries     int `envconfig:"MDL_COMN_RETRY_TASK_COUNT_MAX" default:"3"`
	TaskTimeoutSeconds int `envconfig:"NER_TASK_TIMEOUT_SECONDS" default:"900"`
}

func (config Config) TaskTimeout() time.Duration {
	if config.TaskTimeoutSeconds <= 0 {
		return 900 * time.Second
	}
	return time.Duration(config.TaskTimeoutSeconds) * time.Second
}

type Worker struct {
	config    Config
	redis     redisTransactions
	s3        s3Transactions
	rmq       rmqTransactions
	nerLogger *zerolog.Logger
	ppln      pipeline.Pipeline
	inFlight  sync.WaitGroup
}

func New(ppln pipeline.Pipeline) (*Worker, error) {
	nerLogger := logger.NewLogger("Worker")

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		nerLogger.Error().Err(err).Msg("Could not read config")
		return nil, err
	}

	worker := Worker{
		config:    config,
		nerLogger: &nerLogger,
		ppln:      ppln,
	}
	if err := worker.refreshRMQClient(); err != nil {
		nerLogger.Error().Err(err).Msg("Could not create RMQ client")
		return nil, err
	}
	if err := worker.refreshS3Client(); err != nil {
		nerLogger.Error().Err(err).Msg("Could not create S3 client")
		return nil, err
	}
	if err := worker.refreshRedisClients(); err != nil {
		nerLogger.Error().Err(err).Msg("Could not create Redis client")
		return nil, err
	}
	return &worker, nil
}

// StartWorker handles deliveries until ctx is done or the broker cannot be reconnected.
// Tasks in flight are finished before the clients are closed.
func (worker *Worker) StartWorker(ctx context.Context) error {
	defer worker.Close()
	for {
		select {
		case <-ctx.Done():
			worker.nerLogger.Info().Msg("Stopping worker, waiting for running tasks")
			return nil
		case delivery, ok := <-worker.rmq.getDeliveriesCh():
			if ok {
				worker.inFlight.Add(1)
				go func() {
					defer worker.inFlight.Done()
					worker.processMessage(ctx, &delivery)
				}()
				continue
			}
			worker.nerLogger.Error().Msg("Deliveries channel closed, trying to refresh RMQ client")
			if err := worker.refreshRMQClient(); err != nil {
				return fmt.Errorf("rmq deliveries channel has been closed and refresh returned error: %w", err)
			}
		case rmqErr := <-worker.rmq.getRespChanErrorsCh():
			if err := worker.onConnectionError("response", rmqErr); err != nil {
				return err
			}
		case rmqErr := <-worker.rmq.getReqChanErrorsCh():
			if err := worker.onConnectionError("request", rmqErr); err != nil {
				return err
			}
		}
	}
}

func (worker *Worker) onConnectionError(connection string, rmqErr error) error {
	if rmqErr == nil {
		return nil
	}
	worker.nerLogger.Err(rmqErr).Str("connection", connection).Msg("Connection received error, trying to refresh RMQ client")
	if err := worker.refreshRMQClient(); err != nil {
		return fmt.Errorf("%s connection received error and refresh failed with: %w", connection, err)
	}
	return nil
}

func (worker *Worker) Close() {
	worker.inFlight.Wait()
	worker.redis.close()
	worker.s3.close()
	worker.rmq.close()
}

func (worker *Worker) refreshRedisClients() error {
	worker.nerLogger.Info().Msg("Refreshing Redis client")
	if oldClient := worker.redis; oldClient != nil {
		defer oldClient.close()
	}
	tasksClient, err := tasks.NewClient()
	if err != nil {
		worker.nerLogger.Err(err).Msg("Failed to refresh Redis client")
		return err
	}
	worker.redis = &redisClientWrapper{&tasksClient}
	worker.nerLogger.Info().Msg("Refreshed Redis client")
	return nil
}

func (worker *Worker) refreshRMQClient() error {
	worker.nerLogger.Info().Msg("Refreshing RMQ client")
	if oldClient := worker.rmq; oldClient != nil {
		defer oldClient.close()
	}
	rmqClient, err := rmq.NewClient()
	if err != nil {
		worker.nerLogger.Err(err).Msg("Failed to refresh RMQ client")
		return err
	}
	worker.rmq = &rmqClientWrapper{rmqClient}
	worker.nerLogger.Info().Msg("Refreshed RMQ client")
	return nil
}

func (worker *Worker) refreshS3Client() error {
	worker.nerLogger.Info().Msg("Refreshing S3 client")
	if oldClient := worker.s3; oldClient != nil {
		defer oldClient.close()
	}
	s3Client, err := s3client.New()
	if err != nil {
		worker.nerLogger.Err(err).Msg("Failed to refresh S3 client")
		return err
	}
	worker.s3 = &s3ClientWrapper{s3Client}
	worker.nerLogger.Info().Msg("Refreshed S3 client")
	return nil
}
