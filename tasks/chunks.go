package tasks

import (
	"context"

	"text2phenotype.com/ner/redis"
	"text2phenotype.com/ner/utils/maps"
)

const ChunksDB redis.DB = 2

// WorkerName is how this worker is named in task records and sequencer messages.
const WorkerName = "ner"

type TaskStatus string

const (
	TaskStatusProcessing       TaskStatus = "processing"
	TaskStatusSubmitted        TaskStatus = "submitted"
	TaskStatusStarted          TaskStatus = "started"
	TaskStatusFailed           TaskStatus = "failed"
	TaskStatusCompletedSuccess TaskStatus = "completed - success"
	TaskStatusCompletedFailure TaskStatus = "completed - failure"
	TaskStatusCanceled         TaskStatus = "canceled"
)

func (s TaskStatus) Complete() bool {
	return s == TaskStatusCompletedSuccess || s == TaskStatusCompletedFailure || s == TaskStatusCanceled
}

func (s TaskStatus) Submitted() bool {
	return s == TaskStatusSubmitted || s == TaskStatusStarted || s == TaskStatusProcessing
}

// ChunkTask is one corpus chunk to label. InputFormat is "text" or "columns".
type ChunkTask struct {
	maps.BaseDocument
	DocID        string            `json:"document_id"`
	JobID        string            `json:"job_id"`
	TextFileKey  string            `json:"text_file_key"`
	InputFormat  string            `json:"input_format,omitempty"`
	TaskStatuses ChunkTaskStatuses `json:"task_statuses"`
}

// ChunkTaskStatuses holds this worker's entry; entries of other workers stay in the raw record.
type ChunkTaskStatuses struct {
	NER ChunkTaskInfo `json:"ner"`
}

type ChunkTaskInfo struct {
	ResultsFileKey    string     `json:"results_file_key"`
	StartedAt         *string    `json:"started_at"`
	CompletedAt       *string    `json:"completed_at"`
	Attempts          int        `json:"attempts"`
	Status            TaskStatus `json:"status"`
	Dependencies      []string   `json:"dependencies"`
	ModelDependencies []float64  `json:"model_dependencies"`
	ErrorMessages     []string   `json:"error_messages"`
	Configurations    []string   `json:"configurations,omitempty"`
}

type ChunkTasks struct {
	client redis.Client
}

func (tasks ChunkTasks) Get(ctx context.Context, redisKey string) (*ChunkTask, error) {
	var task ChunkTask
	if err := tasks.client.GetPartialDocument(ctx, redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (tasks ChunkTasks) Update(ctx context.Context, redisKey string, updateFunc func(task *ChunkTask)) error {
	var task ChunkTask
	return tasks.client.UpdatePartialDocument(ctx, redisKey, &task, func() {
		updateFunc(&task)
	})
}
