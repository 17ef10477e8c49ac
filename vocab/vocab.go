// Package vocab maps corpus symbols to indices and to vectors. Every
// vocabulary reserves the special tokens at its lowest indices; which build
// phases a vocabulary takes part in is declared through the capability
// interfaces below rather than a shared base type.
package vocab

import (
	"sort"

	"github.com/CoNLL-UD-2017/UnstableParser/conllu"
	"github.com/CoNLL-UD-2017/UnstableParser/nn"
	"golang.org/x/text/unicode/norm"
	"gorgonia.org/gorgonia"
)

const (
	PAD  = "<PAD>"
	ROOT = "<ROOT>"
	UNK  = "<UNK>"
)

const (
	PAD_IDX = iota
	ROOT_IDX
	UNK_IDX
)

// SpecialTokens occupy indices [0, len(SpecialTokens)) of every vocabulary.
var SpecialTokens = []string{PAD, ROOT, UNK}

// Vocab is anything that turns a token into an index.
type Vocab interface {
	Name() string
	Index(token string) int
}

// FileIngester vocabularies count tokens from raw corpus files.
type FileIngester interface {
	AddFiles(files []string) error
}

// IndexFinalizer vocabularies assign indices to the tokens they counted.
type IndexFinalizer interface {
	IndexTokens()
}

// Embedder vocabularies produce one vector per token inside a graph.
type Embedder interface {
	Vocab
	// Field is the column the tokens are read from.
	Field() Field
	Dim() int
	// Embed builds the n×Dim representation of an n-token input.
	Embed(s *nn.Scope, n int) (*gorgonia.Node, error)
	// Feed binds the inputs Embed created for the given tokens.
	Feed(s *nn.Scope, tokens []string) error
}

// Field selects the column of a CoNLL-U row a vocabulary reads.
type Field func(conllu.Row) string

func FormField(r conllu.Row) string { return r.Form }
func LemmaField(r conllu.Row) string { return r.Lemma }
func UPosField(r conllu.Row) string { return r.UPosTag }
func XPosField(r conllu.Row) string { return r.XPosTag }
func DepRelField(r conllu.Row) string { return r.DepRel }

// Base is the append-only token table shared by the concrete vocabularies.
type Base struct {
	name    string
	field   Field
	strings []string
	index   map[string]int
	counts  map[string]int
}

func newBase(name string, field Field) *Base {
	b := &Base{
		name:   name,
		field:  field,
		index:  make(map[string]int),
		counts: make(map[string]int),
	}
	for _, tok := range SpecialTokens {
		b.add(tok)
	}
	return b
}

func normalize(token string) string {
	return norm.NFC.String(token)
}

// add appends token and returns its index; existing tokens keep theirs.
func (b *Base) add(token string) (int, bool) {
	if idx, ok := b.index[token]; ok {
		return idx, false
	}
	idx := len(b.strings)
	b.index[token] = idx
	b.strings = append(b.strings, token)
	return idx, true
}

func (b *Base) Name() string { return b.name }

// Field returns the column this vocabulary is read from.
func (b *Base) Field() Field { return b.field }

// Index returns the token's index, UNK_IDX when unknown.
func (b *Base) Index(token string) int {
	if idx, ok := b.index[token]; ok {
		return idx
	}
	if idx, ok := b.index[normalize(token)]; ok {
		return idx
	}
	return UNK_IDX
}

// Indices maps a token stream.
func (b *Base) Indices(tokens []string) []int {
	out := make([]int, len(tokens))
	for i, tok := range tokens {
		out[i] = b.Index(tok)
	}
	return out
}

// Token returns the token at index i.
func (b *Base) Token(i int) string { return b.strings[i] }

// Size is the full index range, special tokens included.
func (b *Base) Size() int { return len(b.strings) }

// Len is the number of regular (non-special) tokens.
func (b *Base) Len() int { return len(b.strings) - len(SpecialTokens) }

// Strings returns the regular tokens in index order.
func (b *Base) Strings() []string { return b.strings[len(SpecialTokens):] }

// Freq returns the number of occurrences counted for token.
func (b *Base) Freq(token string) int { return b.counts[token] }

// FreqAt returns the frequency recorded for index i.
func (b *Base) FreqAt(i int) int { return b.counts[b.strings[i]] }

// sortedPending returns counted tokens without an index, most frequent first.
func (b *Base) sortedPending(minCount int) []string {
	var pending []string
	for tok, c := range b.counts {
		if _, ok := b.index[tok]; ok || c < minCount {
			continue
		}
		pending = append(pending, tok)
	}
	sort.Slice(pending, func(i, j int) bool {
		ci, cj := b.counts[pending[i]], b.counts[pending[j]]
		if ci == cj {
			return pending[i] < pending[j]
		}
		return ci > cj
	})
	return pending
}

// AddFileVocabs feeds files to every vocabulary that ingests files, then
// finalizes the indices of every vocabulary that assigns them. Vocabularies
// without a capability are skipped.
func AddFileVocabs(vocabs []Vocab, files []string) error {
	for _, v := range vocabs {
		if fi, ok := v.(FileIngester); ok {
			if err := fi.AddFiles(files); err != nil {
				return err
			}
		}
	}
	for _, v := range vocabs {
		if ix, ok := v.(IndexFinalizer); ok {
			ix.IndexTokens()
		}
	}
	return nil
}
