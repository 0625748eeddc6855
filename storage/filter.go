package storage

import "github.com/sahilm/fuzzy"

// FilterConversations keeps the conversations whose title fuzzy-matches
// query, best match first. An empty query returns list unchanged.
func FilterConversations(list []Conversation, query string) []Conversation {
	if query == "" {
		return list
	}

	targets := make([]string, len(list))
	for i, c := range list {
		targets[i] = c.Title
	}

	matches := fuzzy.Find(query, targets)
	out := make([]Conversation, len(matches))
	for i, match := range matches {
		out[i] = list[match.Index]
	}
	return out
}
