package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadCorpus reads a JSON corpus file: a flat array of documents. A missing
// file yields an empty slice, so a fresh deployment starts without a corpus.
func LoadCorpus(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode corpus %s: %w", path, err)
	}
	return docs, nil
}

// SaveCorpus writes the documents back as an indented JSON array.
func SaveCorpus(path string, docs []Document) error {
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode corpus: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write corpus %s: %w", path, err)
	}
	return nil
}

// Merge appends imported documents to a corpus, replacing documents whose id
// already exists so re-importing a source is idempotent.
func Merge(corpus, imported []Document) []Document {
	index := make(map[string]int, len(corpus))
	for i, d := range corpus {
		index[d.ID] = i
	}
	for _, d := range imported {
		if i, ok := index[d.ID]; ok {
			corpus[i] = d
			continue
		}
		index[d.ID] = len(corpus)
		corpus = append(corpus, d)
	}
	return corpus
}
