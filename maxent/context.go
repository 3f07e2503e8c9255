package maxent

import (
	"strings"

	"text2phenotype.com/ner/types"
)

const (
	prefixLength = 4
	suffixLength = 4
)

// ContextGenerator lists the predicates active for token index given the tags of the two
// tokens before it (empty when there is no such token).
type ContextGenerator interface {
	GetContext(index int, tokens []*types.Token, tagPrev, tagPrevPrev string) []string
}

type defaultContextGenerator struct {
	// words seen often enough in training that affix predicates are skipped for them
	dict    map[string]bool
	seToken *types.Token
	sbToken *types.Token
}

func (g *defaultContextGenerator) GetContext(index int, tokens []*types.Token, tagPrev, tagPrevPrev string) []string {
	var next, prev, nextnext, prevprev *types.Token

	next = g.seToken
	prev = g.sbToken

	lex := tokens[index].GetShapedText()
	if len(tokens) > index+1 {
		next = tokens[index+1]
		nextnext = g.seToken
		if len(tokens) > index+2 {
			nextnext = tokens[index+2]
		}
	}

	if index > 0 {
		prev = tokens[index-1]
		prevprev = g.sbToken
		if index >= 2 {
			prevprev = tokens[index-2]
		}
	}

	contexts := []string{"default", "w=" + lex}

	if !g.dict[lex] {
		for _, suf := range getSuffixes(lex) {
			contexts = append(contexts, "suf="+suf)
		}
		for _, pref := range getPrefixes(lex) {
			contexts = append(contexts, "pre="+pref)
		}
		if strings.ContainsRune(lex, '-') {
			contexts = append(contexts, "h")
		}
		if strings.ContainsRune(tokens[index].Shape, 'X') {
			contexts = append(contexts, "c")
		}
		if strings.ContainsRune(tokens[index].Shape, 'd') {
			contexts = append(contexts, "d")
		}
	}

	contexts = append(contexts, "p="+prev.GetShapedText())
	if index > 0 && len(tagPrev) > 0 {
		contexts = append(contexts, "t="+tagPrev)
	}

	if prevprev != nil {
		contexts = append(contexts, "pp="+prevprev.GetShapedText())
		if index >= 2 && len(tagPrevPrev) > 0 {
			contexts = append(contexts, "t2="+tagPrevPrev+","+tagPrev)
		}
	}

	contexts = append(contexts, "n="+next.GetShapedText())
	if nextnext != nil {
		contexts = append(contexts, "nn="+nextnext.GetShapedText())
	}

	return contexts
}

func getPrefixes(lex string) []string {
	runes := []rune(lex)
	prefs := make([]string, prefixLength)
	for li := 0; li < prefixLength; li++ {
		idx := len(runes)
		if idx > li+1 {
			idx = li + 1
		}
		prefs[li] = string(runes[:idx])
	}
	return prefs
}

func getSuffixes(lex string) []string {
	runes := []rune(lex)
	suffs := make([]string, suffixLength)
	for li := 0; li < suffixLength; li++ {
		idx := len(runes) - li - 1
		if idx < 0 {
			idx = 0
		}
		suffs[li] = string(runes[idx:])
	}
	return suffs
}

// NewContextGenerator builds a generator; affix predicates are skipped for words in frequent.
func NewContextGenerator(frequent ...string) ContextGenerator {
	dict := make(map[string]bool, len(frequent))
	for _, w := range frequent {
		dict[w] = true
	}
	return &defaultContextGenerator{
		dict:    dict,
		sbToken: types.NewToken("*SB*", -1),
		seToken: types.NewToken("*SE*", -1),
	}
}
