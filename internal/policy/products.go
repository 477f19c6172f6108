package policy

import (
	"context"
	"strings"

	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/resolve"
)

// LoanProduct is a loan product type offered to borrowers, e.g. "Personal Loan".
type LoanProduct struct {
	repo.Meta
	Name string `json:"name"`
}

func productName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", invalid("product name is required")
	}
	return name, nil
}

func (s *Service) ListLoanProducts(ctx context.Context) ([]LoanProduct, error) {
	return s.products.List(ctx)
}

func (s *Service) GetLoanProduct(ctx context.Context, id string) (LoanProduct, error) {
	return s.products.Get(ctx, id)
}

// SearchLoanProducts ranks products by fuzzy name match.
func (s *Service) SearchLoanProducts(ctx context.Context, query string) ([]LoanProduct, error) {
	items, err := s.products.List(ctx)
	if err != nil {
		return nil, err
	}
	return resolve.Search(items, query, func(p LoanProduct) string { return p.Name }), nil
}

func (s *Service) AddLoanProduct(ctx context.Context, name string) (LoanProduct, error) {
	name, err := productName(name)
	if err != nil {
		return LoanProduct{}, err
	}
	return s.products.Create(ctx, LoanProduct{Name: name})
}

func (s *Service) RenameLoanProduct(ctx context.Context, id, name string) (LoanProduct, error) {
	name, err := productName(name)
	if err != nil {
		return LoanProduct{}, err
	}
	return s.products.Update(ctx, id, map[string]any{"name": name})
}

func (s *Service) DeleteLoanProduct(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}
