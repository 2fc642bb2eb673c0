package http

import (
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/meshivanshsinghh/opinionflow/internal/domain"
)

type discoverRequest struct {
	Query       string `json:"query"`
	MaxPerStore int    `json:"max_per_store"`
}

func (r discoverRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Query, validation.Required, validation.Length(2, 200)),
		validation.Field(&r.MaxPerStore, validation.Min(0), validation.Max(10)),
	)
}

type customProductRequest struct {
	URL string `json:"url"`
}

func (r customProductRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.URL, validation.Required, is.URL),
	)
}

type specificationsRequest struct {
	ProductIDs []string `json:"product_ids"`
}

func (r specificationsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ProductIDs, validation.Required, validation.Length(1, 50), validation.Each(validation.Required)),
	)
}

// selectionRequest carries an optional explicit product selection
type selectionRequest struct {
	SelectedProducts map[domain.Store]domain.Product `json:"selected_products"`
}

func (r selectionRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SelectedProducts, validation.By(validSelection)),
	)
}

type askRequest struct {
	Question         string                          `json:"question"`
	SelectedProducts map[domain.Store]domain.Product `json:"selected_products"`
}

func (r askRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Question, validation.Required, validation.Length(3, 500)),
		validation.Field(&r.SelectedProducts, validation.By(validSelection)),
	)
}

func validSelection(value interface{}) error {
	selected, _ := value.(map[domain.Store]domain.Product)
	for store, product := range selected {
		if !knownStore(store) {
			return fmt.Errorf("unsupported store %q", store)
		}
		if product.ID == "" {
			return errors.New("every selected product needs an id")
		}
	}
	return nil
}

func knownStore(store domain.Store) bool {
	for _, s := range domain.Stores {
		if s == store {
			return true
		}
	}
	return false
}
