package vocab

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"

	"github.com/CoNLL-UD-2017/UnstableParser/conllu"
	"github.com/CoNLL-UD-2017/UnstableParser/nn"
)

// SubtokenVocab embeds a word as the mean of its character embeddings, so
// words never seen in training still get a vector.
type SubtokenVocab struct {
	*Base
	embedSize int
	cache     *lru.Cache
}

// NewSubtokenVocab builds a character vocabulary over the same column as
// words. cacheSize bounds the number of memoized decompositions.
func NewSubtokenVocab(words *TokenVocab, embedSize, cacheSize int) (*SubtokenVocab, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "subtoken cache")
	}
	return &SubtokenVocab{
		Base:      newBase("Subtokens", words.Field()),
		embedSize: embedSize,
		cache:     cache,
	}, nil
}

func (v *SubtokenVocab) AddFiles(files []string) error {
	for _, f := range files {
		sents, err := conllu.ReadFile(f)
		if err != nil {
			return errors.Wrapf(err, "%s vocabulary", v.name)
		}
		for _, sent := range sents {
			for _, row := range sent {
				for _, r := range normalize(v.field(row)) {
					v.counts[string(r)]++
				}
			}
		}
	}
	return nil
}

// IndexTokens indexes every character seen. Decompositions cached before a
// new character was indexed are stale, so the cache is cleared.
func (v *SubtokenVocab) IndexTokens() {
	pending := v.sortedPending(1)
	for _, tok := range pending {
		v.add(tok)
	}
	if len(pending) > 0 {
		v.cache.Purge()
	}
}

// Subtokens returns the character indices of token. Special tokens map to
// their own index.
func (v *SubtokenVocab) Subtokens(token string) []int {
	if cached, ok := v.cache.Get(token); ok {
		return cached.([]int)
	}
	var idx []int
	if i, ok := v.index[token]; ok && i < len(SpecialTokens) {
		idx = []int{i}
	} else {
		for _, r := range normalize(token) {
			idx = append(idx, v.Index(string(r)))
		}
	}
	v.cache.Add(token, idx)
	return idx
}

func (v *SubtokenVocab) Dim() int { return v.embedSize }

func (v *SubtokenVocab) inputName() string { return v.name + "/Input" }

func (v *SubtokenVocab) Embed(s *nn.Scope, n int) (*gorgonia.Node, error) {
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

// Feed binds a bag of characters per token, each row summing to 1.
func (v *SubtokenVocab) Feed(s *nn.Scope, tokens []string) error {
	cols := v.Size()
	backing := make([]float64, len(tokens)*cols)
	for i, tok := range tokens {
		sub := v.Subtokens(tok)
		if len(sub) == 0 {
			backing[i*cols+PAD_IDX] = 1
			continue
		}
		w := 1 / float64(len(sub))
		for _, j := range sub {
			backing[i*cols+j] += w
		}
	}
	return s.Feed(v.inputName(), nn.Matrix(len(tokens), cols, backing))
}
