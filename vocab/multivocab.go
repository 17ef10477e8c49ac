package vocab

import (
	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"

	"github.com/CoNLL-UD-2017/UnstableParser/nn"
)

// MultiVocab represents one column through several vocabularies at once and
// concatenates their embeddings. It owns no indices of its own.
type MultiVocab struct {
	name    string
	members []Embedder
}

func NewMultiVocab(name string, members ...Embedder) *MultiVocab {
	return &MultiVocab{name: name, members: members}
}

func (m *MultiVocab) Name() string { return m.name }

func (m *MultiVocab) Members() []Embedder { return m.members }

// Field is the column of the first member.
func (m *MultiVocab) Field() Field {
	if len(m.members) == 0 {
		return FormField
	}
	return m.members[0].Field()
}

// Index returns the index in the first member.
func (m *MultiVocab) Index(token string) int {
	if len(m.members) == 0 {
		return UNK_IDX
	}
	return m.members[0].Index(token)
}

// AddFiles forwards to the members that ingest files.
func (m *MultiVocab) AddFiles(files []string) error {
	for _, v := range m.members {
		if fi, ok := v.(FileIngester); ok {
			if err := fi.AddFiles(files); err != nil {
				return err
			}
		}
	}
	return nil
}

// IndexTokens forwards to the members that assign indices.
func (m *MultiVocab) IndexTokens() {
	for _, v := range m.members {
		if ix, ok := v.(IndexFinalizer); ok {
			ix.IndexTokens()
		}
	}
}

func (m *MultiVocab) Dim() int {
	d := 0
	for _, v := range m.members {
		d += v.Dim()
	}
	return d
}

func (m *MultiVocab) Embed(s *nn.Scope, n int) (*gorgonia.Node, error) {
	if len(m.members) == 0 {
		return nil, errors.Errorf("%s has no member vocabularies", m.name)
	}
	nodes := make(gorgonia.Nodes, 0, len(m.members))
	for _, v := range m.members {
		e, err := v.Embed(s, n)
		if err != nil {
			return nil, errors.Wrapf(err, "embed %s", v.Name())
		}
		nodes = append(nodes, e)
	}
	if len(nodes) == 1 {
		return nodes[0], nil
	}
	return gorgonia.Concat(1, nodes...)
}

func (m *MultiVocab) Feed(s *nn.Scope, tokens []string) error {
	for _, v := range m.members {
		if err := v.Feed(s, tokens); err != nil {
			return errors.Wrapf(err, "feed %s", v.Name())
		}
	}
	return nil
}
