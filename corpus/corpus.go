// Package corpus reads and writes documents in whitespace separated column format:
// one token per line with the word first and the gold label last. A blank line or a
// -DOCSTART- line ends a document.
package corpus

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"text2phenotype.com/ner/types"
)

const docStart = "-DOCSTART-"

type Reader struct {
	scanner *bufio.Scanner
	name    string
	count   int
	line    int
}

// NewReader reads documents from r; document ids are name-0, name-1, ...
func NewReader(r io.Reader, name string) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Reader{scanner: scanner, name: name}
}

// Next returns the next non-empty document, or io.EOF.
func (r *Reader) Next() (*types.Document, error) {
	var words, gold []string
	for r.scanner.Scan() {
		r.line++
		fields := strings.Fields(r.scanner.Text())
		if len(fields) == 0 || fields[0] == docStart {
			if len(words) > 0 {
				return r.document(words, gold)
			}
			continue
		}
		words = append(words, fields[0])
		if len(fields) > 1 {
			gold = append(gold, fields[len(fields)-1])
		} else {
			gold = append(gold, "")
		}
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s line %d: %w", r.name, r.line, err)
	}
	if len(words) > 0 {
		return r.document(words, gold)
	}
	return nil, io.EOF
}

func (r *Reader) document(words, gold []string) (*types.Document, error) {
	doc := types.NewDocument(fmt.Sprintf("%s-%d", r.name, r.count), words)
	r.count++
	if err := doc.SetLabels(types.SlotGoldAnswer, gold); err != nil {
		return nil, err
	}
	return doc, nil
}

func ReadAll(r io.Reader, name string) ([]*types.Document, error) {
	reader := NewReader(r, name)
	var docs []*types.Document
	for {
		doc, err := reader.Next()
		if err == io.EOF {
			return docs, nil
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Channel returns a closed channel holding docs, ready to be drained by a runner.
func Channel(docs []*types.Document) <-chan *types.Document {
	ch := make(chan *types.Document, len(docs))
	for _, doc := range docs {
		ch <- doc
	}
	close(ch)
	return ch
}

// Writer prints one "word gold answer" line per token (gold is left out when unknown)
// and a blank line after every document.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (w *Writer) Write(doc *types.Document) error {
	for _, token := range doc.Tokens {
		var err error
		if token.GoldAnswer != "" {
			_, err = fmt.Fprintf(w.w, "%s\t%s\t%s\n", token.Text, token.GoldAnswer, token.Answer)
		} else {
			_, err = fmt.Fprintf(w.w, "%s\t%s\n", token.Text, token.Answer)
		}
		if err != nil {
			return err
		}
	}
	_, err := w.w.WriteString("\n")
	return err
}

func (w *Writer) Flush() error {
	return w.w.Flush()
}
