package vocab

import (
	"log"
	"strings"

	"github.com/pkg/errors"
)

// Options sizes the vocabularies of a Registry.
type Options struct {
	EmbedSize         int
	TagEmbedSize      int
	SubtokenEmbedSize int
	MinOccurCount     int
	SubtokenCacheSize int
	PretrainedFile    string
	MaxRank           int
}

// Registry is the set of vocabularies a parser reads its inputs through.
type Registry struct {
	Words      *TokenVocab
	Subtokens  *SubtokenVocab
	Pretrained *PretrainedVocab
	WordMulti  *MultiVocab
	Lemmas     *TokenVocab
	Tags       *TokenVocab
	XTags      *TokenVocab
	Heads      *HeadVocab
	Rels       *TokenVocab
}

// NewRegistry builds every vocabulary from the training files. The pretrained
// vocabulary is loaded afterwards so its counts can follow the word counts.
func NewRegistry(opts Options, trainFiles []string) (*Registry, error) {
	r := &Registry{
		Words:  NewTokenVocab("Words", FormField, opts.EmbedSize, opts.MinOccurCount),
		Lemmas: NewTokenVocab("Lemmas", LemmaField, opts.EmbedSize, opts.MinOccurCount),
		Tags:   NewTokenVocab("Tags", UPosField, opts.TagEmbedSize, 1),
		XTags:  NewTokenVocab("XTags", XPosField, opts.TagEmbedSize, 1),
		Heads:  NewHeadVocab("Heads"),
		Rels:   NewTokenVocab("Rels", DepRelField, 0, 1),
	}
	var err error
	if r.Subtokens, err = NewSubtokenVocab(r.Words, opts.SubtokenEmbedSize, opts.SubtokenCacheSize); err != nil {
		return nil, err
	}
	r.WordMulti = NewMultiVocab(r.Words.Name(), r.Words, r.Subtokens)
	if err := r.AddFileVocabs(trainFiles); err != nil {
		return nil, errors.Wrap(err, "build vocabularies")
	}

	if opts.PretrainedFile != "" {
		r.Pretrained, err = NewPretrainedVocab(opts.PretrainedFile, opts.MaxRank, r.Words, opts.EmbedSize)
		if err != nil {
			return nil, err
		}
		r.WordMulti = NewMultiVocab(r.Words.Name(), r.Words, r.Pretrained, r.Subtokens)
	}
	for _, v := range []*TokenVocab{r.Words, r.Lemmas, r.Tags, r.XTags, r.Rels} {
		log.Printf("Vocab %s: %d tokens", v.Name(), v.Len())
	}
	var members []string
	for _, m := range r.WordMulti.Members() {
		members = append(members, m.Name())
	}
	log.Printf("Vocab %s embeds %s", r.WordMulti.Name(), strings.Join(members, " + "))
	return r, nil
}

// Vocabs lists the registry's top-level vocabularies.
func (r *Registry) Vocabs() []Vocab {
	return []Vocab{r.WordMulti, r.Lemmas, r.Tags, r.XTags, r.Heads, r.Rels}
}

// Embedders lists the vocabularies whose embeddings form a token's input.
func (r *Registry) Embedders() []Embedder {
	return []Embedder{r.WordMulti, r.Lemmas, r.Tags, r.XTags}
}

// AddFileVocabs grows the file-backed vocabularies with more corpus files.
func (r *Registry) AddFileVocabs(files []string) error {
	return AddFileVocabs(r.Vocabs(), files)
}
