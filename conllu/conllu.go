// Package conllu reads the subset of CoNLL-U needed to build vocabularies and
// training batches.
package conllu

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	FIELD_SEPARATOR = '\t'
	NUM_FIELDS      = 10
)

// Row is one syntactic word with the columns the parser reads.
type Row struct {
	ID      int
	Form    string
	Lemma   string
	UPosTag string
	XPosTag string
	Head    int
	DepRel  string
}

// A Sentence holds the syntactic words of one sentence, in order.
type Sentence []Row

// ParseRow builds a Row from the ten tab-separated columns of a word line.
func ParseRow(record []string) (Row, error) {
	var row Row
	if len(record) < NUM_FIELDS {
		return row, errors.Errorf("expected %d fields, got %d", NUM_FIELDS, len(record))
	}
	id, err := strconv.Atoi(record[0])
	if err != nil {
		return row, errors.Wrapf(err, "bad ID %q", record[0])
	}
	row.ID = id
	row.Form = parseString(record[1])
	row.Lemma = parseString(record[2])
	row.UPosTag = parseString(record[3])
	row.XPosTag = parseString(record[4])
	if record[6] == "_" {
		row.Head = -1
	} else {
		head, err := strconv.Atoi(record[6])
		if err != nil {
			return row, errors.Wrapf(err, "bad HEAD %q", record[6])
		}
		row.Head = head
	}
	row.DepRel = parseString(record[7])
	return row, nil
}

func parseString(value string) string {
	if value == "_" {
		return ""
	}
	return value
}

// Read parses sentences separated by blank lines. Comment lines, multiword
// token ranges (1-2) and empty nodes (1.1) are skipped.
func Read(reader io.Reader) ([]Sentence, error) {
	var (
		sentences []Sentence
		current   Sentence
		line      int
	)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 16384), 1<<20)
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if len(text) == 0 {
			if len(current) > 0 {
				sentences = append(sentences, current)
				current = nil
			}
			continue
		}
		if text[0] == '#' {
			continue
		}
		record := strings.Split(text, string(FIELD_SEPARATOR))
		if strings.ContainsAny(record[0], "-.") {
			continue
		}
		row, err := ParseRow(record)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		current = append(current, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(current) > 0 {
		sentences = append(sentences, current)
	}
	return sentences, nil
}

// ReadFile reads every sentence of a CoNLL-U file.
func ReadFile(filename string) ([]Sentence, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	sents, err := Read(file)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return sents, nil
}

// ReadFiles concatenates the sentences of every file in order.
func ReadFiles(filenames []string) ([]Sentence, error) {
	var all []Sentence
	for _, name := range filenames {
		sents, err := ReadFile(name)
		if err != nil {
			return nil, err
		}
		all = append(all, sents...)
	}
	return all, nil
}
