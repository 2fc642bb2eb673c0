package domain

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// ComparisonID derives the comparison identity for a set of selected products.
// The digest depends only on the sorted (store, product id) pairs.
func ComparisonID(selected map[Store]Product) string {
	keys := make([]string, 0, len(selected))
	for store, product := range selected {
		keys = append(keys, string(store)+"_"+product.ID)
	}
	sort.Strings(keys)

	sum := md5.Sum([]byte(strings.Join(keys, "|")))
	return "COMP_" + hex.EncodeToString(sum[:])[:16]
}
