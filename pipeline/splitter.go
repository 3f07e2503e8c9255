package pipeline

import (
	"text2phenotype.com/ner/types"
)

// NewDocumentChannelSplitter copies every document of in to n output channels.
// Each output receives its own clone, in input order.
func NewDocumentChannelSplitter(n int) func(in <-chan *types.Document) []chan *types.Document {

	return func(in <-chan *types.Document) []chan *types.Document {
		outs := make([]chan *types.Document, n)
		for i := 0; i < n; i++ {
			outs[i] = make(chan *types.Document, 1)
		}

		go func() {
			defer closeAllChannels(outs)
			for doc := range in {
				for _, out := range outs {
					out <- doc.Clone()
				}
			}
		}()
		return outs
	}
}

func closeAllChannels(outs []chan *types.Document) {
	for _, out := range outs {
		close(out)
	}
}
