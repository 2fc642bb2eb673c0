package usecase

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

const discoveryKeyPrefix = "DISC_"

// discoveryStopWords are dropped before a query is used as a cache key
var discoveryStopWords = map[string]bool{
	"the":  true,
	"a":    true,
	"an":   true,
	"and":  true,
	"or":   true,
	"but":  true,
	"for":  true,
	"with": true,
}

// NormalizeQuery lowercases query, drops stop words and sorts the remaining words,
// so "The Wireless Mouse" and "mouse wireless" normalize identically.
func NormalizeQuery(query string) string {
	words := strings.Fields(strings.ToLower(query))

	kept := make([]string, 0, len(words))
	for _, w := range words {
		if !discoveryStopWords[w] {
			kept = append(kept, w)
		}
	}
	sort.Strings(kept)

	return strings.Join(kept, " ")
}

// DiscoveryCacheKey returns the content-addressed key of a discovery query
func DiscoveryCacheKey(query string) string {
	sum := md5.Sum([]byte(NormalizeQuery(query)))
	return discoveryKeyPrefix + hex.EncodeToString(sum[:])
}
