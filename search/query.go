package search

import (
	"strconv"
	"strings"
)

// Query represents the structured parameters of a message search. It
// decouples the raw user input from the index engine requirements.
type Query struct {
	RawInput string // the original query string
	Terms    string // the text to match against message bodies
	Room     string // optional room filter
	Lang     string // optional ISO-639-1 language filter
	Limit    int    // number of results
}

const defaultLimit = 10

// ParseQuery extracts command-line style arguments from a raw string.
// Example: invoice --room lobby --lang en --limit 5
func ParseQuery(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string
	for i := 0; i < len(parts); i++ {
		part := parts[i]

		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			val := parts[i+1]
			switch strings.TrimPrefix(part, "--") {
			case "room":
				query.Room = val
			case "lang":
				query.Lang = val
			case "limit":
				if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++ // skip the consumed value
			continue
		}
		textTerms = append(textTerms, part)
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}
