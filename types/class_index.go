package types

import (
	"encoding/json"
	"fmt"
)

// ClassIndex maps labels to dense indices and back. Indices never change once assigned.
type ClassIndex struct {
	toID  map[string]int
	toStr []string
}

func NewClassIndex(labels ...string) *ClassIndex {
	index := &ClassIndex{toID: make(map[string]int, len(labels))}
	for _, label := range labels {
		index.Add(label)
	}
	return index
}

// Add returns the index of label, assigning the next free one if it is new.
func (index *ClassIndex) Add(label string) int {
	if id, ok := index.toID[label]; ok {
		return id
	}
	id := len(index.toStr)
	index.toID[label] = id
	index.toStr = append(index.toStr, label)
	return id
}

func (index *ClassIndex) IndexOf(label string) (int, bool) {
	id, ok := index.toID[label]
	return id, ok
}

func (index *ClassIndex) Label(id int) string {
	if id < 0 || id >= len(index.toStr) {
		panic(fmt.Sprintf("class index %d out of range [0, %d)", id, len(index.toStr)))
	}
	return index.toStr[id]
}

func (index *ClassIndex) Size() int {
	return len(index.toStr)
}

func (index *ClassIndex) Labels() []string {
	labels := make([]string, len(index.toStr))
	copy(labels, index.toStr)
	return labels
}

// Decode turns a tag index sequence into labels.
func (index *ClassIndex) Decode(tags []int) []string {
	labels := make([]string, len(tags))
	for i, tag := range tags {
		labels[i] = index.Label(tag)
	}
	return labels
}

func (index *ClassIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(index.toStr)
}

func (index *ClassIndex) UnmarshalJSON(b []byte) error {
	var labels []string
	if err := json.Unmarshal(b, &labels); err != nil {
		return err
	}
	*index = *NewClassIndex(labels...)
	return nil
}
