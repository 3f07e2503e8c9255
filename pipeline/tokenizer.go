package pipeline

import (
	"bufio"
	"fmt"
	"strings"

	"text2phenotype.com/ner/corpus"
	"text2phenotype.com/ner/types"
)

// Tokenizer turns a request into documents with ids derived from the request tid.
type Tokenizer func(request Request) ([]*types.Document, error)

func NewTokenizer() Tokenizer {
	return func(request Request) ([]*types.Document, error) {
		format, err := ParseFormat(string(request.Format))
		if err != nil {
			return nil, err
		}
		if format == FormatColumns {
			return corpus.ReadAll(strings.NewReader(request.Text), request.Tid)
		}
		return splitLines(request.Text, request.Tid)
	}
}

func splitLines(text, tid string) ([]*types.Document, error) {
	var docs []*types.Document
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		words := strings.Fields(scanner.Text())
		if len(words) == 0 {
			continue
		}
		docs = append(docs, types.NewDocument(fmt.Sprintf("%s-%d", tid, len(docs)), words))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
