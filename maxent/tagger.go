package maxent

import (
	"text2phenotype.com/ner/sequence"
	"text2phenotype.com/ner/types"
)

const DefaultBeamSize = 3

type Tagger struct {
	Model      *Model
	contextGen ContextGenerator
	validator  SequenceValidator
	beamSize   int
}

func NewTagger(model *Model, dict TagDictionary) *Tagger {
	return &Tagger{
		Model:      model,
		contextGen: NewContextGenerator(),
		validator:  NewSequenceValidator(dict),
		beamSize:   DefaultBeamSize,
	}
}

func (tagger *Tagger) SequenceModel(tokens []*types.Token) *SequenceModel {
	return NewSequenceModel(tagger.Model, tokens, tagger.contextGen, tagger.validator)
}

// Tag labels tokens with a left-to-right beam search.
func (tagger *Tagger) Tag(tokens []*types.Token) ([]string, error) {
	best, err := sequence.BeamBestSequence(tagger.SequenceModel(tokens), tagger.beamSize)
	if err != nil {
		return nil, err
	}
	result := make([]string, len(best.Tags))
	for i, oid := range best.Tags {
		result[i] = tagger.Model.Outcomes[oid]
	}
	return result, nil
}
