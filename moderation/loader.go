package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"chat-broker/errors"
)

//go:embed dictionaries/*
var dictionariesFS embed.FS

// Dictionary carries the loaded word list plus metadata for logging.
type Dictionary struct {
	Words     []string
	Languages []string
}

// LoadDictionaries parses the embedded per-language .txt files into a
// unique word list. Filenames name the language ("en.txt" -> "en").
func LoadDictionaries() (*Dictionary, error) {
	entries, err := fs.ReadDir(dictionariesFS, "dictionaries")
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := dictionariesFS.ReadFile("dictionaries/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// A scanner handles both \n and \r\n line endings.
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	return &Dictionary{Words: words, Languages: languages}, nil
}
