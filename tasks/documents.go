package tasks

import (
	"context"

	"golang.org/x/sync/errgroup"
	"text2phenotype.com/ner/redis"
	"text2phenotype.com/ner/utils/maps"
)

const DocumentsDB redis.DB = 0

type DocumentTask struct {
	maps.BaseDocument
	FailedTasks  []string            `json:"failed_tasks"`
	FailedChunks map[string][]string `json:"failed_chunks"`
}

// DocumentTaskCached is the copy of a document record other services poll without locking.
type DocumentTaskCached struct {
	maps.BaseDocument
	DocInfo     map[string]interface{} `json:"document_info"`
	FailedTasks []string               `json:"failed_tasks"`
	JobID       string                 `json:"job_id"`
	WorkType    string                 `json:"work_type"`
}

type DocumentTasks struct {
	client redis.Client
}

func (tasks DocumentTasks) Get(ctx context.Context, redisKey string) (*DocumentTask, error) {
	var task DocumentTask
	if err := tasks.client.GetPartialDocument(ctx, redisKey, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (tasks DocumentTasks) GetCached(ctx context.Context, redisKey string) (*DocumentTaskCached, error) {
	var task DocumentTaskCached
	if err := tasks.client.GetPartialDocument(ctx, cachedPropertiesKey(redisKey), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Update changes the document record and refreshes its cached copy under one lock.
func (tasks DocumentTasks) Update(ctx context.Context, redisKey string, updateFunc func(task *DocumentTask)) (err error) {
	releaseLock, err := tasks.client.Lock(ctx, redisKey)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := releaseLock(); err == nil {
			err = releaseErr
		}
	}()

	var task DocumentTask
	var cached DocumentTaskCached
	if err = tasks.client.GetPartialDocument(ctx, redisKey, &task); err != nil {
		return err
	}
	if err = maps.ApplyUpdates(&task, func() { updateFunc(&task) }); err != nil {
		return err
	}
	if err = maps.CopyValues(&task, &cached); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return tasks.client.SaveDoc(groupCtx, redisKey, &task)
	})
	group.Go(func() error {
		return tasks.client.SaveDoc(groupCtx, cachedPropertiesKey(redisKey), &cached)
	})
	return group.Wait()
}
