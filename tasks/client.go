// Package tasks reads and updates the job, document and chunk records the sequencer
// keeps for every unit of work.
package tasks

import (
	"fmt"

	"text2phenotype.com/ner/redis"
)

type Client struct {
	Documents DocumentTasks
	Chunks    ChunkTasks
	Jobs      JobTasks
}

// NewClient opens one connection per task database.
func NewClient() (Client, error) {
	docRedisClient, err := redis.NewClient(DocumentsDB)
	if err != nil {
		return Client{}, err
	}
	jobsRedisClient, err := redis.NewClient(JobsDB)
	if err != nil {
		_ = docRedisClient.Close()
		return Client{}, err
	}
	chunksRedisClient, err := redis.NewClient(ChunksDB)
	if err != nil {
		_ = docRedisClient.Close()
		_ = jobsRedisClient.Close()
		return Client{}, err
	}
	return NewClientFrom(docRedisClient, jobsRedisClient, chunksRedisClient), nil
}

func NewClientFrom(documents, jobs, chunks redis.Client) Client {
	return Client{
		Documents: DocumentTasks{client: documents},
		Jobs:      JobTasks{client: jobs},
		Chunks:    ChunkTasks{client: chunks},
	}
}

func (client *Client) Close() {
	_ = client.Chunks.client.Close()
	_ = client.Documents.client.Close()
	_ = client.Jobs.client.Close()
}

func cachedPropertiesKey(redisKey string) string {
	return fmt.Sprintf("%s-cached-properties", redisKey)
}
