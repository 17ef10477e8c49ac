package vocab

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gorgonia.org/gorgonia"

	"github.com/CoNLL-UD-2017/UnstableParser/nn"
)

// ErrMalformedRow is returned for an embedding line that cannot be parsed.
var ErrMalformedRow = errors.New("malformed pretrained embedding row")

// PretrainedVocab is a frozen embedding table read from a text file sorted by
// descending frequency. The file has no counts, so they are synthesized from
// a Zipf curve.
type PretrainedVocab struct {
	*Base
	filename  string
	maxRank   int
	reference *TokenVocab
	targetDim int

	dim     int
	vectors []float64
}

// NewPretrainedVocab loads filename and derives its counts. reference may be
// nil, in which case an ideal Zipf law is assumed. The projected output has
// targetDim columns; 0 keeps the file's dimensionality.
func NewPretrainedVocab(filename string, maxRank int, reference *TokenVocab, targetDim int) (*PretrainedVocab, error) {
	v := &PretrainedVocab{
		Base:      newBase("Pretrained", FormField),
		filename:  filename,
		maxRank:   maxRank,
		reference: reference,
		targetDim: targetDim,
	}
	if err := v.Load(); err != nil {
		return nil, err
	}
	v.Count()
	return v, nil
}

// Load reads at most maxRank lines. A token's index is its line number
// offset by the special tokens.
func (v *PretrainedVocab) Load() error {
	f, err := os.Open(v.filename)
	if err != nil {
		return errors.Wrap(err, "open pretrained embeddings")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for line < v.maxRank && scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			return errors.Wrapf(ErrMalformedRow, "%s:%d", v.filename, line+1)
		}
		if v.dim == 0 {
			v.dim = len(fields) - 1
		} else if len(fields)-1 != v.dim {
			return errors.Wrapf(ErrMalformedRow, "%s:%d: expected %d values, got %d", v.filename, line+1, v.dim, len(fields)-1)
		}
		for _, s := range fields[1:] {
			x, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.Wrapf(ErrMalformedRow, "%s:%d: %v", v.filename, line+1, err)
			}
			v.vectors = append(v.vectors, x)
		}
		if _, added := v.add(fields[0]); !added {
			return errors.Errorf("%s:%d: duplicate token %q", v.filename, line+1, fields[0])
		}
		line++
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read pretrained embeddings")
	}
	log.Printf("Pretrained: loaded %d vectors of dimension %d from %s", line, v.dim, v.filename)
	return nil
}

// Count assigns every token a synthetic frequency. Predictions are divided by
// their minimum and truncated, so the rarest token counts 1.
func (v *PretrainedVocab) Count() {
	n := v.Len()
	if n == 0 {
		return
	}
	var freqs []float64
	if v.reference != nil {
		z, err := v.reference.FitToZipf()
		if err != nil {
			log.Printf("Pretrained: %v; assuming an ideal Zipf law", err)
		} else {
			freqs = z.PredictN(n)
		}
	}
	if freqs == nil || floats.Min(freqs) <= 0 {
		freqs = IdealZipf(n)
	}
	min := floats.Min(freqs)
	for i, tok := range v.Strings() {
		v.counts[tok] = int(freqs[i] / min)
	}
}

// PretrainedDim is the dimensionality read from the file.
func (v *PretrainedVocab) PretrainedDim() int { return v.dim }

// Dim is the dimensionality after projection.
func (v *PretrainedVocab) Dim() int {
	if v.targetDim > 0 {
		return v.targetDim
	}
	return v.dim
}

// Embeddings returns the loaded vectors, one row per token in rank order.
func (v *PretrainedVocab) Embeddings() *mat.Dense {
	if v.Len() == 0 {
		return nil
	}
	return mat.NewDense(v.Len(), v.dim, v.vectors)
}

// table lays out the frozen lookup table: zero rows for the special tokens,
// then the loaded vectors.
func (v *PretrainedVocab) table() []float64 {
	special := len(SpecialTokens) * v.dim
	backing := make([]float64, special+v.Len()*v.dim)
	mat.NewDense(v.Len(), v.dim, backing[special:]).Copy(v.Embeddings())
	return backing
}

func (v *PretrainedVocab) inputName() string { return v.name + "/Input" }

// Embed looks tokens up in the frozen table and projects them with a learned
// Dim×PretrainedDim matrix A. The first training-scope call that creates A
// also adds ‖A·Aᵀ − I‖² to the scope's losses; later calls reuse both.
func (v *PretrainedVocab) Embed(s *nn.Scope, n int) (*gorgonia.Node, error) {
	if v.Len() == 0 {
		return nil, errors.Errorf("no pretrained vectors loaded from %s", v.filename)
	}
	table, err := s.Frozen(v.name+"/Embeddings", v.Size(), v.dim, v.table())
	if err != nil {
		return nil, err
	}
	input, err := s.Input(v.inputName(), n, v.Size())
	if err != nil {
		return nil, err
	}
	lookup, err := gorgonia.Mul(input, table)
	if err != nil {
		return nil, errors.Wrap(err, "pretrained lookup")
	}

	a, created, err := s.Param(v.projectionName(), gorgonia.GlorotU(1.0), v.Dim(), v.dim)
	if err != nil {
		return nil, err
	}
	if created && !s.Moving() {
		pen, err := nn.Orthogonality(s.Graph(), a)
		if err != nil {
			return nil, errors.Wrap(err, "orthogonality loss")
		}
		s.AddLoss(pen)
	}
	at, err := gorgonia.Transpose(a)
	if err != nil {
		return nil, err
	}
	return gorgonia.Mul(lookup, at)
}

// Orthogonality evaluates ‖A·Aᵀ − I‖² on the current raw projection. ok is
// false until Embed has created A.
func (v *PretrainedVocab) Orthogonality(ps *nn.ParamSet) (pen float64, ok bool) {
	p, ok := ps.Get(v.projectionName())
	if !ok {
		return 0, false
	}
	return nn.OrthogonalityPenalty(mat.NewDense(p.Shape[0], p.Shape[1], p.Raw())), true
}

func (v *PretrainedVocab) projectionName() string { return v.name + "/Linear/Weights" }

func (v *PretrainedVocab) Feed(s *nn.Scope, tokens []string) error {
	return s.Feed(v.inputName(), nn.OneHot(v.Indices(tokens), len(tokens), v.Size()))
}
