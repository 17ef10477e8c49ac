package vocab

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteTo writes one "token<TAB>count" line per regular token in index order.
func (b *Base) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64
	for i := len(SpecialTokens); i < b.Size(); i++ {
		n, err := fmt.Fprintf(bw, "%s\t%d\n", b.Token(i), b.FreqAt(i))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// Write stores every indexed vocabulary as {dir}/{name}.txt.
func (r *Registry) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create vocab dir")
	}
	bases := []*Base{r.Words.Base, r.Subtokens.Base, r.Lemmas.Base, r.Tags.Base, r.XTags.Base, r.Rels.Base}
	if r.Pretrained != nil {
		bases = append(bases, r.Pretrained.Base)
	}
	for _, b := range bases {
		path := filepath.Join(dir, b.Name()+".txt")
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "write %s vocabulary", b.Name())
		}
		_, err = b.WriteTo(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Wrapf(err, "write %s vocabulary", b.Name())
		}
	}
	return nil
}
