package usecase

import (
	"sync"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
	"github.com/sirupsen/logrus"
)

const defaultRegistrySize = 1000

// ProductRegistry is the bounded in-process product store. Entries are kept in
// insertion order and the oldest ~10% are evicted once the bound is exceeded.
// Every read and write goes through the single mutex; callers get clones.
type ProductRegistry struct {
	mu       sync.Mutex
	products *orderedmap.OrderedMap[string, *domain.Product]
	maxSize  int
}

// NewProductRegistry creates a registry holding at most maxSize products
func NewProductRegistry(maxSize int) *ProductRegistry {
	if maxSize <= 0 {
		maxSize = defaultRegistrySize
	}
	return &ProductRegistry{
		products: orderedmap.NewOrderedMap[string, *domain.Product](),
		maxSize:  maxSize,
	}
}

// Put inserts or replaces a product
func (r *ProductRegistry) Put(p *domain.Product) {
	if p == nil || p.ID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.products.Set(p.ID, p.Clone())
	r.evictLocked()
}

// Get returns a copy of the product
func (r *ProductRegistry) Get(id string) (*domain.Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products.Get(id)
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Has reports whether id is registered
func (r *ProductRegistry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products.Has(id)
}

// UpdateSpecifications replaces the specifications of a registered product
func (r *ProductRegistry) UpdateSpecifications(id string, specs map[string]string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.products.Get(id)
	if !ok {
		return false
	}
	p.Specifications = make(map[string]string, len(specs))
	for k, v := range specs {
		p.Specifications[k] = v
	}
	return true
}

// SetSelected marks id as the selected product for its store and clears the
// flag on every other product of that store
func (r *ProductRegistry) SetSelected(store domain.Store, id string) (*domain.Product, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.products.Get(id)
	if !ok || target.Source != store {
		return nil, false
	}
	for el := r.products.Front(); el != nil; el = el.Next() {
		if el.Value.Source == store {
			el.Value.IsSelected = false
		}
	}
	target.IsSelected = true
	return target.Clone(), true
}

// Selected returns the selected product per store
func (r *ProductRegistry) Selected() map[domain.Store]domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()

	selected := make(map[domain.Store]domain.Product)
	for el := r.products.Front(); el != nil; el = el.Next() {
		if el.Value.IsSelected {
			selected[el.Value.Source] = *el.Value.Clone()
		}
	}
	return selected
}

// Len returns the number of registered products
func (r *ProductRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.products.Len()
}

func (r *ProductRegistry) evictLocked() {
	if r.products.Len() <= r.maxSize {
		return
	}

	n := max(r.maxSize/10, 1)
	evicted := 0
	for evicted < n {
		el := r.products.Front()
		if el == nil {
			break
		}
		r.products.Delete(el.Key)
		evicted++
	}
	logrus.WithFields(logrus.Fields{"evicted": evicted, "remaining": r.products.Len()}).Debug("[REGISTRY] evicted oldest products")
}
