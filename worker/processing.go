package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"text2phenotype.com/ner/pipeline"
	"text2phenotype.com/ner/tasks"
	"text2phenotype.com/ner/utils"
)

// Message is the sequencer's envelope around a chunk task key.
type Message struct {
	WorkType string `json:"work_type"`
	RedisKey string `json:"redis_key"`
	Sender   string `json:"sender"`
	Version  string `json:"version"`
}

type Task struct {
	delivery       *amqp.Delivery
	chunkTask      *tasks.ChunkTask
	message        *Message
	redisKey       string
	configurations []string
	nerLogger      *zerolog.Logger
}

func (worker *Worker) processMessage(ctx context.Context, delivery *amqp.Delivery) {
	ctx, cancel := context.WithTimeout(ctx, worker.config.TaskTimeout())
	defer cancel()

	rejectLogger := worker.nerLogger.With().Str("message_id", delivery.MessageId).Logger()
	task, err := worker.createTask(ctx, delivery)
	if err != nil {
		rejectLogger.Err(err).
			Str("body", string(delivery.Body)).
			Msg("Failed to create task for delivery")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.processTask(ctx, task); err != nil {
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.pingSequencer(task, *task.message); err != nil {
		task.nerLogger.Err(err).Msg("Got error while sending message to sequencer queue")
		worker.rmq.rejectDelivery(delivery, &rejectLogger)
		return
	}
	if err = worker.rmq.acknowledgeDelivery(delivery); err != nil {
		task.nerLogger.Err(err).Msg("Failed to acknowledge delivery")
	}
	task.nerLogger.Info().Msg("Finished processing RMQ message")
}

func (worker *Worker) createTask(ctx context.Context, delivery *amqp.Delivery) (*Task, error) {
	var message Message
	if err := json.Unmarshal(delivery.Body, &message); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	chunkTask, err := worker.redis.getChunkTask(ctx, message.RedisKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk task for message: %w", err)
	}
	taskLogger := worker.nerLogger.With().
		Str("tid", message.RedisKey).
		Str("document_id", chunkTask.DocID).
		Logger()
	return &Task{
		delivery:  delivery,
		chunkTask: chunkTask,
		redisKey:  message.RedisKey,
		message:   &message,
		nerLogger: &taskLogger,
	}, nil
}

// processTask returns an error only when the delivery should be rejected. A pipeline failure
// is recorded on the task and the sequencer decides about retries.
func (worker *Worker) processTask(ctx context.Context, task *Task) error {
	shouldPerform, err := worker.shouldPerformTask(ctx, task)
	if err != nil {
		task.nerLogger.Err(err).Msg("Got error while trying to decide whether to run task")
		return err
	}
	if !shouldPerform {
		return nil
	}
	if err = worker.redis.onTaskStarted(ctx, task); err != nil {
		task.nerLogger.Err(err).Msg("Failed to update task info")
		return fmt.Errorf("failed to update task info: %w", err)
	}
	if err = worker.runPipeline(ctx, task); err != nil {
		task.nerLogger.Err(err).Msg("Got error while running pipeline")
		return worker.redis.onTaskFailedWithError(ctx, task, err)
	}
	task.nerLogger.Info().Strs("configurations", task.configurations).Msg("Saved results, marking task as complete")
	if err = worker.redis.onTaskComplete(ctx, task); err != nil {
		task.nerLogger.Err(err).Msg("Got error while trying to mark task as complete")
		return err
	}
	return nil
}

func (worker *Worker) runPipeline(ctx context.Context, task *Task) (err error) {
	defer utils.RecoverWithError(&err)
	task.nerLogger.Info().
		Int("attempt", task.chunkTask.TaskStatuses.NER.Attempts).
		Str("text_file_key", task.chunkTask.TextFileKey).
		Msg("Processing message from RMQ")
	data, err := worker.s3.getCorpus(ctx, task)
	if err != nil {
		task.nerLogger.Err(err).Caller().Msg("Could not fetch corpus from s3")
		return fmt.Errorf("failed fetch data from s3: %w", err)
	}
	request := pipeline.Request{
		Tid:    task.redisKey,
		Text:   string(data),
		Format: pipeline.Format(task.chunkTask.InputFormat),
	}
	var result string
	select {
	case res, ok := <-worker.ppln(request):
		if !ok {
			return errors.New("pipeline channel was closed before returning anything")
		}
		result = res
	case <-ctx.Done():
		return fmt.Errorf("pipeline did not finish: %w", ctx.Err())
	}

	parsed, err := pipeline.ParseResponse(result)
	if err != nil {
		return err
	}
	for name, cfgResponse := range parsed {
		task.configurations = append(task.configurations, name)
		task.nerLogger.Info().
			Str("config_name", name).
			Int("documents", cfgResponse.Stats.Documents).
			Int("failed", cfgResponse.Stats.Failed).
			Float64("tokens_per_second", cfgResponse.Stats.TokensPerSecond).
			Msg("Configuration finished")
	}
	sort.Strings(task.configurations)

	task.nerLogger.Info().Msg("Finished pipeline, saving results to s3")
	if err = worker.s3.saveResultsFile(ctx, task, result); err != nil {
		task.nerLogger.Err(err).Msg("Got error while trying to save results")
		return err
	}
	return nil
}

func (worker *Worker) shouldPerformTask(ctx context.Context, task *Task) (bool, error) {
	taskInfo := task.chunkTask.TaskStatuses.NER
	taskLogger := task.nerLogger

	if taskInfo.Status.Complete() {
		taskLogger.Info().Msg("Task is already done. (might indicate issue acking message with RMQ). Sending back to Sequencer.")
		return false, nil
	}
	taskJob, err := worker.redis.getJobTask(ctx, task)
	if err != nil {
		taskLogger.Err(err).Msg("Failed to query job task for chunk task")
		return false, err
	}
	if taskJob.UserCanceled {
		taskLogger.Info().Msg("Job was canceled, no need to perform this task. Sending back to Sequencer.")
		return false, worker.redis.onTaskCancelled(ctx, task)
	}
	if taskJob.StopDocumentsOnFailure {
		docTask, err := worker.redis.getDocTask(ctx, task)
		if err != nil {
			return false, err
		}
		if docTask == nil {
			return false, errors.New("document task not found")
		}
		if len(docTask.FailedTasks) > 0 {
			failedTask := docTask.FailedTasks[0]
			taskLogger.Info().Str("failed_task", failedTask).
				Msg("Task is not required because the document already failed in another worker. Sending back to Sequencer.")
			return false, worker.redis.onTaskCancelled(ctx, task, fmt.Sprintf(
				"Task was marked as \"%s\" because of the current document has failed "+
					"in the \"%s\" worker and won't be processed successfully.",
				tasks.TaskStatusCanceled,
				failedTask,
			))
		}
	}
	if taskInfo.Attempts >= worker.config.TaskMaxRetries {
		taskLogger.Info().Msg("NER task has exceeded retries. Sending back to Sequencer.")
		return false, worker.redis.onTaskExceededRetries(ctx, task, worker.config.TaskMaxRetries)
	}
	return true, nil
}
