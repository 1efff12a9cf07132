package search

import (
	"strconv"
	"strings"
)

const defaultLimit = 10

// Query represents the structured parameters of a conversation search.
// It decouples the raw chat input from the actual index engine requirements.
type Query struct {
	RawInput string // The original input from the user
	Terms    string // The actual text to search
	From     string // Restrict to one sender, empty for both participants
	Limit    int    // Number of results
}

// NewQuery parses a raw string to extract command-line style arguments.
// Example: /find "invoice" --from u2 --limit 5
func NewQuery(input string) *Query {
	query := &Query{
		RawInput: input,
		Limit:    defaultLimit,
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --from u2 or --limit 5
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			key := strings.TrimPrefix(part, "--")
			val := parts[i+1]

			switch key {
			case "from":
				query.From = val
			case "limit":
				if limit, err := strconv.Atoi(val); err == nil && limit > 0 {
					query.Limit = limit
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}

		// If it's not a flag, it's a search term
		if !strings.HasPrefix(part, "/") {
			textTerms = append(textTerms, strings.Trim(part, `"`))
		}
	}

	query.Terms = strings.Join(textTerms, " ")
	return query
}
