package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/repo"
)

func TestLoanProductLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	_, err := svc.AddLoanProduct(ctx, "   ")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	personal, err := svc.AddLoanProduct(ctx, "  Personal Loan ")
	require.NoError(t, err)
	require.Equal(t, "Personal Loan", personal.Name)
	require.NotEmpty(t, personal.ID)
	require.True(t, personal.CreatedAt.Equal(fixedNow))

	business, err := svc.AddLoanProduct(ctx, "Business Loan")
	require.NoError(t, err)

	renamed, err := svc.RenameLoanProduct(ctx, personal.ID, " Salary Loan ")
	require.NoError(t, err)
	require.Equal(t, "Salary Loan", renamed.Name)
	require.Equal(t, personal.ID, renamed.ID)

	_, err = svc.RenameLoanProduct(ctx, personal.ID, "")
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = svc.RenameLoanProduct(ctx, "missing", "Gold Loan")
	require.ErrorIs(t, err, repo.ErrNotFound)

	found, err := svc.SearchLoanProducts(ctx, "busi")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, business.ID, found[0].ID)

	require.NoError(t, svc.DeleteLoanProduct(ctx, personal.ID))
	require.ErrorIs(t, svc.DeleteLoanProduct(ctx, personal.ID), repo.ErrNotFound)

	all, err := svc.ListLoanProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Business Loan", all[0].Name)
}
