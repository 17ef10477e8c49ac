package parser

import (
	"math/rand"

	"github.com/CoNLL-UD-2017/UnstableParser/conllu"
)

// Batch is one mini-batch of sentences.
type Batch struct {
	Sentences []conllu.Sentence
}

// Iterator walks a lazy batch sequence once.
type Iterator interface {
	Next() (*Batch, bool)
}

type batchIterator struct {
	sents []conllu.Sentence
	order []int
	size  int
	pos   int
}

func (it *batchIterator) Next() (*Batch, bool) {
	if it.pos >= len(it.order) {
		return nil, false
	}
	end := it.pos + it.size
	if end > len(it.order) {
		end = len(it.order)
	}
	b := &Batch{Sentences: make([]conllu.Sentence, 0, end-it.pos)}
	for _, i := range it.order[it.pos:end] {
		b.Sentences = append(b.Sentences, it.sents[i])
	}
	it.pos = end
	return b, true
}

// Batches splits sents into batches of size, in an order drawn from rng.
// A nil rng keeps the corpus order.
func Batches(sents []conllu.Sentence, size int, rng *rand.Rand) Iterator {
	if size < 1 {
		size = 1
	}
	order := make([]int, len(sents))
	for i := range order {
		order[i] = i
	}
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return &batchIterator{sents: sents, order: order, size: size}
}
