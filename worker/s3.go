package worker

import (
	"context"

	"text2phenotype.com/ner/s3client"
)

type s3Transactions interface {
	saveResultsFile(ctx context.Context, task *Task, result string) error
	getCorpus(ctx context.Context, task *Task) ([]byte, error)
	close()
}

type s3ClientWrapper struct {
	s3Client *s3client.Client
}

func (wrapper *s3ClientWrapper) close() {
	wrapper.s3Client.Close()
}

func (wrapper *s3ClientWrapper) saveResultsFile(ctx context.Context, task *Task, result string) error {
	_, err := wrapper.s3Client.Upload(ctx, result, getResultsFileKey(task))
	return err
}

func (wrapper *s3ClientWrapper) getCorpus(ctx context.Context, task *Task) ([]byte, error) {
	return wrapper.s3Client.Download(ctx, task.chunkTask.TextFileKey)
}
