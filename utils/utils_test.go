package utils

import (
	"container/heap"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item int

func (i item) Less(o interface{}) bool {
	return i > o.(item)
}

func TestPriorityQueue(t *testing.T) {
	pq := make(PriorityQueue, 0)
	assert.Nil(t, pq.Peek())
	for _, v := range []item{3, 9, 1, 7} {
		heap.Push(&pq, v)
	}
	assert.Equal(t, item(9), pq.Peek())
	var popped []item
	for pq.Len() > 0 {
		popped = append(popped, heap.Pop(&pq).(item))
	}
	assert.Equal(t, []item{9, 7, 3, 1}, popped)
}

func TestHashInts(t *testing.T) {
	assert.Equal(t, HashInts([]int{1, 2, 3}), HashInts([]int{1, 2, 3}))
	assert.NotEqual(t, HashInts([]int{1, 2, 3}), HashInts([]int{3, 2, 1}))
	assert.NotEqual(t, HashInts([]int{12}), HashInts([]int{1, 2}))
}

func TestReadMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tags.txt")
	require.NoError(t, os.WriteFile(path, []byte("# word|tags\nParis|LOC LOC-B\n\nbroken\nJohn|PER\n"), 0o644))
	m, err := ReadMap(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Paris": "LOC LOC-B", "John": "PER"}, m)

	_, err = ReadMap(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestRecoverWithError(t *testing.T) {
	run := func() (err error) {
		defer RecoverWithError(&err)
		panic(errors.New("boom"))
	}
	assert.EqualError(t, run(), "got panic: boom")
}
