package maxent

import (
	"strings"

	"text2phenotype.com/ner/types"
	"text2phenotype.com/ner/utils"
)

// TagDictionary restricts the tags a known word may take. Words it does not list take any tag.
type TagDictionary map[string]map[string]bool

// LoadTagDictionary reads "word|TAG1,TAG2" lines.
func LoadTagDictionary(filePath string) (TagDictionary, error) {
	raw, err := utils.ReadMap(filePath)
	if err != nil {
		return nil, err
	}
	dict := make(TagDictionary, len(raw))
	for word, value := range raw {
		tags := make(map[string]bool)
		for _, tag := range strings.Split(value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags[tag] = true
			}
		}
		dict[word] = tags
	}
	return dict, nil
}

type SequenceValidator interface {
	ValidSequence(i int, inputSequence []*types.Token, outcome string) bool
}

type defaultSequenceValidator struct {
	tagDictionary TagDictionary
}

func (g defaultSequenceValidator) ValidSequence(i int, inputSequence []*types.Token, outcome string) bool {
	if g.tagDictionary == nil {
		return true
	}
	tags, res := g.tagDictionary[inputSequence[i].Text]
	if !res {
		return true
	}
	return tags[outcome]
}

func NewSequenceValidator(dict TagDictionary) SequenceValidator {
	return defaultSequenceValidator{tagDictionary: dict}
}
