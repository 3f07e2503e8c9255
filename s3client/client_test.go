package s3client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitURL(t *testing.T) {
	tests := []struct {
		url, bucket, key string
	}{
		{"s3://corpora/conll/dev.txt", "corpora", "conll/dev.txt"},
		{"s3://corpora", "corpora", ""},
		{"processed/documents/d/chunks/c.json", "", "processed/documents/d/chunks/c.json"},
	}
	for _, test := range tests {
		bucket, key := SplitURL(test.url)
		assert.Equal(t, test.bucket, bucket, test.url)
		assert.Equal(t, test.key, key, test.url)
	}
}

func TestDefaultBucket(t *testing.T) {
	client := Client{env: EnvironmentConfig{BucketName: "results"}}
	assert.Equal(t, "results", client.bucket(""))
	assert.Equal(t, "corpora", client.bucket("corpora"))
}
