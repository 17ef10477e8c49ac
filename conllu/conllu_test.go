package conllu

import (
	"strings"
	"testing"
)

const sample = `# sent_id = 1
# text = The cats sleep.
1	The	the	DET	DT	_	2	det	_	_
2	cats	cat	NOUN	NNS	_	3	nsubj	_	_
3	sleep	sleep	VERB	VBP	_	0	root	_	_
4	.	.	PUNCT	.	_	3	punct	_	_

1-2	Don't	_	_	_	_	_	_	_	_
1	Do	do	AUX	VB	_	3	aux	_	_
2	n't	not	PART	RB	_	3	advmod	_	_
2.1	x	x	X	X	_	_	_	_	_
3	go	go	VERB	VB	_	0	root	_	_
`

func TestParseRow(t *testing.T) {
	row, err := ParseRow(strings.Split("2	cats	cat	NOUN	NNS	Number=Plur	3	nsubj	_	_", "\t"))
	if err != nil {
		t.Fatal(err)
	}
	if row.ID != 2 {
		t.Errorf("Expected ID 2, got %d", row.ID)
	}
	if row.Form != "cats" || row.Lemma != "cat" {
		t.Errorf("Expected FORM/LEMMA cats/cat, got %s/%s", row.Form, row.Lemma)
	}
	if row.UPosTag != "NOUN" || row.XPosTag != "NNS" {
		t.Errorf("Expected tags NOUN/NNS, got %s/%s", row.UPosTag, row.XPosTag)
	}
	if row.Head != 3 || row.DepRel != "nsubj" {
		t.Errorf("Expected head 3 nsubj, got %d %s", row.Head, row.DepRel)
	}
}

func TestParseRowErrors(t *testing.T) {
	if _, err := ParseRow([]string{"1", "x"}); err == nil {
		t.Error("Expected error for short record")
	}
	if _, err := ParseRow(strings.Split("a	x	x	X	X	_	0	root	_	_", "\t")); err == nil {
		t.Error("Expected error for non-numeric ID")
	}
}

func TestRead(t *testing.T) {
	sents, err := Read(strings.NewReader(sample))
	if err != nil {
		t.Fatal(err)
	}
	if len(sents) != 2 {
		t.Fatalf("Expected 2 sentences, got %d", len(sents))
	}
	if len(sents[0]) != 4 {
		t.Errorf("Expected 4 words in first sentence, got %d", len(sents[0]))
	}
	// ranges and empty nodes are skipped
	if len(sents[1]) != 3 {
		t.Errorf("Expected 3 words in second sentence, got %d", len(sents[1]))
	}
	if sents[1][1].Form != "n't" {
		t.Errorf("Expected n't, got %s", sents[1][1].Form)
	}
}
