package vocab

import (
	"strconv"

	"github.com/CoNLL-UD-2017/UnstableParser/conllu"
	"github.com/CoNLL-UD-2017/UnstableParser/nn"
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
)

// TokenVocab covers the per-feature vocabularies read from one CoNLL-U
// column: words, lemmas, tags, xtags and relations.
type TokenVocab struct {
	*Base
	embedSize int
	minCount  int
}

func NewTokenVocab(name string, field Field, embedSize, minCount int) *TokenVocab {
	if minCount < 1 {
		minCount = 1
	}
	return &TokenVocab{
		Base:      newBase(name, field),
		embedSize: embedSize,
		minCount:  minCount,
	}
}

func (v *TokenVocab) AddFiles(files []string) error {
	for _, f := range files {
		sents, err := conllu.ReadFile(f)
		if err != nil {
			return errors.Wrapf(err, "%s vocabulary", v.name)
		}
		v.AddSentences(sents)
	}
	return nil
}

// AddSentences counts the vocabulary's column over sents.
func (v *TokenVocab) AddSentences(sents []conllu.Sentence) {
	for _, sent := range sents {
		for _, row := range sent {
			tok := v.field(row)
			if tok == "" {
				continue
			}
			v.counts[normalize(tok)]++
		}
	}
}

// IndexTokens appends every counted token seen at least minCount times,
// most frequent first. Existing indices never move.
func (v *TokenVocab) IndexTokens() {
	for _, tok := range v.sortedPending(v.minCount) {
		v.add(tok)
	}
}

func (v *TokenVocab) Dim() int { return v.embedSize }

func (v *TokenVocab) inputName() string { return v.name + "/Input" }

// Embed looks up a trainable Size×Dim table through a one-hot input.
func (v *TokenVocab) Embed(s *nn.Scope, n int) (*gorgonia.Node, error) {
	if v.embedSize <= 0 {
		return nil, errors.Errorf("%s vocabulary has no embeddings", v.name)
	}
	table, _, err := s.Param(v.name+"/Embeddings", gorgonia.GlorotU(1.0), v.Size(), v.embedSize)
	if err != nil {
		return nil, err
	}
	input, err := s.Input(v.inputName(), n, v.Size())
	if err != nil {
		return nil, err
	}
	return gorgonia.Mul(input, table)
}

func (v *TokenVocab) Feed(s *nn.Scope, tokens []string) error {
	return s.Feed(v.inputName(), nn.OneHot(v.Indices(tokens), len(tokens), v.Size()))
}

// FitToZipf fits a Zipf curve to the counts of the indexed tokens.
func (v *TokenVocab) FitToZipf() (*Zipf, error) {
	counts := make([]int, 0, v.Len())
	for _, tok := range v.Strings() {
		if c := v.Freq(tok); c > 0 {
			counts = append(counts, c)
		}
	}
	z, err := FitZipf(counts)
	if err != nil {
		return nil, errors.Wrapf(err, "%s vocabulary", v.name)
	}
	return z, nil
}

// HeadVocab reads head positions. Its indices are the positions themselves,
// so it neither ingests files nor finalizes indices.
type HeadVocab struct {
	name string
}

func NewHeadVocab(name string) *HeadVocab { return &HeadVocab{name: name} }

func (v *HeadVocab) Name() string { return v.name }

// Index parses a head position; anything else is -1.
func (v *HeadVocab) Index(token string) int {
	h, err := strconv.Atoi(token)
	if err != nil || h < 0 {
		return -1
	}
	return h
}
