package domain

import (
	"strings"
	"time"
)

// Store identifies a supported e-commerce site
type Store string

const (
	StoreAmazon  Store = "amazon"
	StoreWalmart Store = "walmart"
	StoreTarget  Store = "target"
)

// Stores lists every supported store in discovery order
var Stores = []Store{StoreAmazon, StoreWalmart, StoreTarget}

// Domain returns the site domain used for store-scoped search and URL detection
func (s Store) Domain() string {
	return string(s) + ".com"
}

// DetectStore maps a URL to its store by domain substring
func DetectStore(url string) (Store, error) {
	lower := strings.ToLower(url)
	for _, store := range Stores {
		if strings.Contains(lower, store.Domain()) {
			return store, nil
		}
	}
	return "", &StoreNotSupportedError{Store: url}
}

// Product represents a normalized product listing extracted from a store page
type Product struct {
	ID                string            `json:"id"`
	Source            Store             `json:"source"`
	URL               string            `json:"url"`
	Name              string            `json:"name"`
	Price             *float64          `json:"price,omitempty"`
	Rating            float64           `json:"rating"`
	ReviewCount       int               `json:"review_count"`
	ImageURL          string            `json:"image_url,omitempty"`
	Specifications    map[string]string `json:"specifications"`
	SpecificationsRaw string            `json:"-"`
	IsSelected        bool              `json:"is_selected"`
	LastScraped       *time.Time        `json:"last_scraped,omitempty"`
}

// Valid reports whether the product can be surfaced to callers
func (p *Product) Valid() bool {
	return p != nil && strings.TrimSpace(p.Name) != "" && strings.TrimSpace(p.URL) != ""
}

// Clone returns a deep copy safe to hand across goroutines
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	if p.Price != nil {
		price := *p.Price
		c.Price = &price
	}
	if p.LastScraped != nil {
		ts := *p.LastScraped
		c.LastScraped = &ts
	}
	c.Specifications = make(map[string]string, len(p.Specifications))
	for k, v := range p.Specifications {
		c.Specifications[k] = v
	}
	return &c
}

// DiscoverySet maps each store to its discovered products in extraction order
type DiscoverySet map[Store][]*Product

// Clone deep-copies the set
func (d DiscoverySet) Clone() DiscoverySet {
	out := make(DiscoverySet, len(d))
	for store, products := range d {
		copied := make([]*Product, 0, len(products))
		for _, p := range products {
			copied = append(copied, p.Clone())
		}
		out[store] = copied
	}
	return out
}

// Count returns the total number of products across stores
func (d DiscoverySet) Count() int {
	n := 0
	for _, products := range d {
		n += len(products)
	}
	return n
}

// SearchHistory is one recorded discovery query
type SearchHistory struct {
	Query            string            `json:"query"`
	Timestamp        time.Time         `json:"timestamp"`
	SelectedProducts map[Store]Product `json:"selected_products"`
}
