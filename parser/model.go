// Package parser is the dependency parser trained by the network package: it
// batches CoNLL-U sentences, scores arcs and labels over the vocabulary
// embeddings and reports the metrics tracked in the run history.
package parser

import (
	"strconv"

	"github.com/pkg/errors"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/CoNLL-UD-2017/UnstableParser/nn"
	"github.com/CoNLL-UD-2017/UnstableParser/vocab"
)

const maskValue = -1e9

// Options sizes the parser graph.
type Options struct {
	BatchSize  int
	MaxSentLen int
	HiddenSize int
}

// Model is the parser graph built in one scope. Each mini-batch is laid out
// as BatchSize blocks of MaxSentLen rows; row 0 of a block is ROOT.
type Model struct {
	opts  Options
	reg   *vocab.Registry
	scope *nn.Scope
	n     int

	Loss      *gorgonia.Node
	ArcScores *gorgonia.Node
	RelScores *gorgonia.Node
}

// NewModel builds the parser graph in s over the embeddings of reg.
func NewModel(s *nn.Scope, reg *vocab.Registry, opts Options) (*Model, error) {
	if opts.BatchSize < 1 || opts.MaxSentLen < 2 || opts.HiddenSize < 1 {
		return nil, errors.Errorf("invalid parser options %+v", opts)
	}
	m := &Model{opts: opts, reg: reg, scope: s, n: opts.BatchSize * opts.MaxSentLen}
	if err := m.build(); err != nil {
		return nil, errors.Wrap(err, "build parser")
	}
	return m, nil
}

func (m *Model) embedders() []vocab.Embedder {
	var out []vocab.Embedder
	for _, e := range m.reg.Embedders() {
		if e.Dim() > 0 {
			out = append(out, e)
		}
	}
	return out
}

func (m *Model) build() error {
	s, n, h := m.scope, m.n, m.opts.HiddenSize

	var embeds gorgonia.Nodes
	for _, e := range m.embedders() {
		x, err := e.Embed(s, n)
		if err != nil {
			return err
		}
		embeds = append(embeds, x)
	}
	if len(embeds) == 0 {
		return errors.New("no vocabulary has embeddings")
	}
	x := embeds[0]
	if len(embeds) > 1 {
		var err error
		if x, err = gorgonia.Concat(1, embeds...); err != nil {
			return errors.Wrap(err, "concat embeddings")
		}
	}

	dep, err := m.mlp("Parser/Dep", x)
	if err != nil {
		return err
	}
	head, err := m.mlp("Parser/Head", x)
	if err != nil {
		return err
	}

	u, _, err := s.Param("Parser/Arc/Weights", gorgonia.GlorotU(1.0), h, h)
	if err != nil {
		return err
	}
	du, err := gorgonia.Mul(dep, u)
	if err != nil {
		return err
	}
	ht, err := gorgonia.Transpose(head)
	if err != nil {
		return err
	}
	arcs, err := gorgonia.Mul(du, ht)
	if err != nil {
		return errors.Wrap(err, "arc scores")
	}
	mask, err := s.Input("Parser/Mask", n, n)
	if err != nil {
		return err
	}
	if m.ArcScores, err = gorgonia.Add(arcs, mask); err != nil {
		return err
	}

	goldArcs, err := s.Input("Parser/GoldArcs", n, n)
	if err != nil {
		return err
	}
	nTokens, err := s.Input("Parser/NTokens")
	if err != nil {
		return err
	}
	arcLoss, err := crossEntropy(m.ArcScores, goldArcs, nTokens)
	if err != nil {
		return errors.Wrap(err, "arc loss")
	}

	goldHead, err := gorgonia.Mul(goldArcs, head)
	if err != nil {
		return err
	}
	relIn, err := gorgonia.Concat(1, dep, goldHead)
	if err != nil {
		return err
	}
	r := m.reg.Rels.Size()
	wr, _, err := s.Param("Parser/Rel/Weights", gorgonia.GlorotU(1.0), 2*h, r)
	if err != nil {
		return err
	}
	if m.RelScores, err = gorgonia.Mul(relIn, wr); err != nil {
		return errors.Wrap(err, "rel scores")
	}
	goldRels, err := s.Input("Parser/GoldRels", n, r)
	if err != nil {
		return err
	}
	relLoss, err := crossEntropy(m.RelScores, goldRels, nTokens)
	if err != nil {
		return errors.Wrap(err, "rel loss")
	}

	m.Loss, err = gorgonia.Add(arcLoss, relLoss)
	return err
}

// mlp is tanh(x·W + b).
func (m *Model) mlp(name string, x *gorgonia.Node) (*gorgonia.Node, error) {
	w, _, err := m.scope.Param(name+"/Weights", gorgonia.GlorotU(1.0), x.Shape()[1], m.opts.HiddenSize)
	if err != nil {
		return nil, err
	}
	b, _, err := m.scope.Param(name+"/Biases", gorgonia.Zeroes(), 1, m.opts.HiddenSize)
	if err != nil {
		return nil, err
	}
	xw, err := gorgonia.Mul(x, w)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	xwb, err := gorgonia.BroadcastAdd(xw, b, nil, []byte{0})
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return gorgonia.Tanh(xwb)
}

// crossEntropy is −Σ gold·log softmax(scores), averaged over nTokens. The
// softmax is taken row by row with the row maximum subtracted first.
func crossEntropy(scores, gold, nTokens *gorgonia.Node) (*gorgonia.Node, error) {
	logp, err := logSoftMax(scores)
	if err != nil {
		return nil, err
	}
	picked, err := gorgonia.HadamardProd(gold, logp)
	if err != nil {
		return nil, err
	}
	total, err := gorgonia.Sum(picked)
	if err != nil {
		return nil, err
	}
	avg, err := gorgonia.Div(total, nTokens)
	if err != nil {
		return nil, err
	}
	return gorgonia.Neg(avg)
}

// logSoftMax normalizes every row of an n×k matrix in log space.
func logSoftMax(x *gorgonia.Node) (*gorgonia.Node, error) {
	rows := x.Shape()[0]
	rowMax, err := gorgonia.Max(x, 1)
	if err != nil {
		return nil, errors.Wrap(err, "row max")
	}
	if rowMax, err = gorgonia.Reshape(rowMax, tensor.Shape{rows, 1}); err != nil {
		return nil, err
	}
	shifted, err := gorgonia.BroadcastSub(x, rowMax, nil, []byte{1})
	if err != nil {
		return nil, errors.Wrap(err, "shift")
	}
	exp, err := gorgonia.Exp(shifted)
	if err != nil {
		return nil, err
	}
	sum, err := gorgonia.Sum(exp, 1)
	if err != nil {
		return nil, err
	}
	lse, err := gorgonia.Log(sum)
	if err != nil {
		return nil, err
	}
	if lse, err = gorgonia.Reshape(lse, tensor.Shape{rows, 1}); err != nil {
		return nil, err
	}
	return gorgonia.BroadcastSub(shifted, lse, nil, []byte{1})
}

// layout is the host-side view of a fed batch.
type layout struct {
	mask  []float64
	heads []int
	rels  []int
	nTok  int
	nSeq  int
}

// feed binds every input of the graph for b.
func (m *Model) feed(b *Batch) (*layout, error) {
	n, maxLen := m.n, m.opts.MaxSentLen
	embedders := m.embedders()
	tokens := make([][]string, len(embedders))
	for i := range tokens {
		tokens[i] = make([]string, n)
		for j := range tokens[i] {
			tokens[i][j] = vocab.PAD
		}
	}
	l := &layout{
		mask:  make([]float64, n*n),
		heads: make([]int, n),
		rels:  make([]int, n),
	}
	for i := range l.mask {
		l.mask[i] = maskValue
	}
	for i := range l.heads {
		l.heads[i] = -1
		l.rels[i] = -1
	}

	for bi, sent := range b.Sentences {
		if bi >= m.opts.BatchSize {
			break
		}
		base := bi * maxLen
		length := len(sent) + 1
		if length > maxLen {
			length = maxLen
		}
		for i := range embedders {
			tokens[i][base] = vocab.ROOT
		}
		for j := 1; j < length; j++ {
			row := sent[j-1]
			for i, e := range embedders {
				tokens[i][base+j] = e.Field()(row)
			}
			for k := 0; k < length; k++ {
				if k != j {
					l.mask[(base+j)*n+base+k] = 0
				}
			}
			head := m.reg.Heads.Index(strconv.Itoa(row.Head))
			if head < 0 || head >= length {
				continue
			}
			l.heads[base+j] = base + head
			l.rels[base+j] = m.reg.Rels.Index(row.DepRel)
			l.nTok++
		}
		l.nSeq++
	}

	for i, e := range embedders {
		if err := e.Feed(m.scope, tokens[i]); err != nil {
			return nil, err
		}
	}
	r := m.reg.Rels.Size()
	nTok := l.nTok
	if nTok == 0 {
		nTok = 1
	}
	feeds := []struct {
		name  string
		value interface{}
	}{
		{"Parser/Mask", nn.Matrix(n, n, l.mask)},
		{"Parser/GoldArcs", nn.OneHot(l.heads, n, n)},
		{"Parser/GoldRels", nn.OneHot(l.rels, n, r)},
		{"Parser/NTokens", float64(nTok)},
	}
	for _, f := range feeds {
		if err := m.scope.Feed(f.name, f.value); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// metrics reads a finished run: n_tokens, n_sequences, the loss summed over
// tokens and the attachment counts.
func (m *Model) metrics(l *layout) ([]float64, error) {
	loss, err := nn.ScalarValue(m.Loss)
	if err != nil {
		return nil, err
	}
	if m.ArcScores.Value() == nil || m.RelScores.Value() == nil {
		return nil, errors.New("parser scores were not computed")
	}
	arcs := m.ArcScores.Value().Data().([]float64)
	rels := m.RelScores.Value().Data().([]float64)
	n, r := m.n, m.reg.Rels.Size()

	var uas, las int
	for i, gold := range l.heads {
		if gold < 0 {
			continue
		}
		if argmax(arcs[i*n:(i+1)*n]) != gold {
			continue
		}
		uas++
		if argmax(rels[i*r:(i+1)*r]) == l.rels[i] {
			las++
		}
	}
	return []float64{
		float64(l.nTok),
		float64(l.nSeq),
		loss * float64(l.nTok),
		float64(uas),
		float64(las),
	}, nil
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
