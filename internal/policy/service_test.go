package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/store"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newService() (*Service, *store.Memory) {
	kv := store.NewMemory()
	return NewService(kv).WithClock(func() time.Time { return fixedNow }), kv
}

func TestLoanPolicyDefaults(t *testing.T) {
	svc, _ := newService()
	got, err := svc.LoanPolicy(context.Background())
	require.NoError(t, err)
	require.True(t, got.MinAmount.Equal(decimal.NewFromInt(10000)))
	require.Equal(t, 60, got.MaxTenureMonths)
	require.Nil(t, got.UpdatedAt)
}

func TestSaveLoanPolicyValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	cases := []struct {
		name   string
		mutate func(*LoanPolicy)
	}{
		{"min amount zero", func(p *LoanPolicy) { p.MinAmount = decimal.Zero }},
		{"max below min", func(p *LoanPolicy) { p.MaxAmount = decimal.NewFromInt(5000) }},
		{"tenure min zero", func(p *LoanPolicy) { p.MinTenureMonths = 0 }},
		{"tenure max not above min", func(p *LoanPolicy) { p.MaxTenureMonths = p.MinTenureMonths }},
		{"emi to income above 80", func(p *LoanPolicy) { p.MaxEMIToIncomePercent = 81 }},
		{"emi to income zero", func(p *LoanPolicy) { p.MaxEMIToIncomePercent = 0 }},
		{"min emi zero", func(p *LoanPolicy) { p.MinEMIAmount = decimal.Zero }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultLoanPolicy()
			tc.mutate(&p)
			_, err := svc.SaveLoanPolicy(ctx, p)
			require.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestSaveLoanPolicyMergesMessages(t *testing.T) {
	ctx := context.Background()
	svc, kv := newService()

	p := DefaultLoanPolicy()
	p.MaxAmount = decimal.NewFromInt(750000)
	p.ValidationMessages = ValidationMessages{EMITooLow: "EMI too low."}
	saved, err := svc.SaveLoanPolicy(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, saved.UpdatedAt)
	require.True(t, saved.UpdatedAt.Equal(fixedNow))

	got, err := svc.LoanPolicy(ctx)
	require.NoError(t, err)
	require.True(t, got.MaxAmount.Equal(decimal.NewFromInt(750000)))
	require.Equal(t, "EMI too low.", got.ValidationMessages.EMITooLow)
	require.Equal(t, DefaultLoanPolicy().ValidationMessages.AmountOutOfRange, got.ValidationMessages.AmountOutOfRange)

	// a stored document missing newer fields still reads them from the defaults
	require.NoError(t, kv.Put(ctx, LoanPolicyKey, []byte(`{"min_amount":"5000","validation_messages":{"emi_too_low":"x"}}`)))
	got, err = svc.LoanPolicy(ctx)
	require.NoError(t, err)
	require.True(t, got.MinAmount.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, 50, got.MaxEMIToIncomePercent)
	require.Equal(t, "x", got.ValidationMessages.EMITooLow)
	require.Equal(t, DefaultLoanPolicy().ValidationMessages.TenureOutOfRange, got.ValidationMessages.TenureOutOfRange)
}

func TestLoanPolicyCheck(t *testing.T) {
	p := DefaultLoanPolicy()
	ok := LoanRequest{Amount: decimal.NewFromInt(50000), TenureMonths: 12, EMI: decimal.NewFromInt(4500), MonthlyIncome: decimal.NewFromInt(20000)}
	require.Empty(t, p.Check(ok))

	bad := LoanRequest{Amount: decimal.NewFromInt(1000), TenureMonths: 120, EMI: decimal.NewFromInt(500), MonthlyIncome: decimal.NewFromInt(800)}
	want := []string{
		p.ValidationMessages.AmountOutOfRange,
		p.ValidationMessages.TenureOutOfRange,
		p.ValidationMessages.EMITooLow,
		p.ValidationMessages.EMIToIncome,
	}
	if diff := cmp.Diff(want, p.Check(bad)); diff != "" {
		t.Fatalf("messages (-want +got):\n%s", diff)
	}
}

func TestSecuritySettings(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	bad := DefaultSecuritySettings()
	bad.PasswordPolicy.MinLength = 5
	_, err := svc.SaveSecuritySettings(ctx, bad)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	bad = DefaultSecuritySettings()
	bad.TwoFactor.Method = "pigeon"
	_, err = svc.SaveSecuritySettings(ctx, bad)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	tok, err := svc.GenerateAPIToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Token)
	require.True(t, tok.CreatedAt.Equal(fixedNow))

	// saving the other settings keeps the token
	in := DefaultSecuritySettings()
	in.TwoFactor = TwoFactor{Enabled: true, Method: "authenticator"}
	in.APIToken = APIToken{Token: "forged"}
	saved, err := svc.SaveSecuritySettings(ctx, in)
	require.NoError(t, err)
	require.Equal(t, tok.Token, saved.APIToken.Token)
	require.True(t, saved.TwoFactor.Enabled)

	ok, err := svc.VerifyAPIToken(ctx, tok.Token)
	require.NoError(t, err)
	require.True(t, ok)
	ok, _ = svc.VerifyAPIToken(ctx, "forged")
	require.False(t, ok)

	require.NoError(t, svc.RevokeAPIToken(ctx))
	ok, _ = svc.VerifyAPIToken(ctx, tok.Token)
	require.False(t, ok)
	cur, _ := svc.SecuritySettings(ctx)
	require.Empty(t, cur.APIToken.Token)
	require.Nil(t, cur.APIToken.CreatedAt)
}

func TestCheckPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	require.ErrorIs(t, svc.CheckPassword(ctx, "Ab1"), apperr.ErrInvalidInput)
	require.ErrorIs(t, svc.CheckPassword(ctx, "lowercase1"), apperr.ErrInvalidInput)
	require.ErrorIs(t, svc.CheckPassword(ctx, "NoDigitsHere"), apperr.ErrInvalidInput)
	require.NoError(t, svc.CheckPassword(ctx, "Passw0rdOk"))

	s := DefaultSecuritySettings()
	s.PasswordPolicy.RequireSpecialChar = true
	_, err := svc.SaveSecuritySettings(ctx, s)
	require.NoError(t, err)
	require.ErrorIs(t, svc.CheckPassword(ctx, "Passw0rdOk"), apperr.ErrInvalidInput)
	require.NoError(t, svc.CheckPassword(ctx, "Passw0rd!"))

	n, err := svc.MinPasswordLength(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, n)
}

func TestRepaymentRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	for _, day := range []int{0, 29} {
		r := DefaultRepaymentRules()
		r.EMIDate = day
		_, err := svc.SaveRepaymentRules(ctx, r)
		require.ErrorIs(t, err, apperr.ErrInvalidInput, "emi date %d", day)
	}

	r := DefaultRepaymentRules()
	r.LateFee.Type = "percent"
	r.LateFee.Percent = decimal.NewFromInt(11)
	_, err := svc.SaveRepaymentRules(ctx, r)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	r.LateFee.Percent = decimal.NewFromInt(10)
	r.AutoDebit.Mode = "upi"
	saved, err := svc.SaveRepaymentRules(ctx, r)
	require.NoError(t, err)
	require.Equal(t, "upi", saved.AutoDebit.Mode)

	r.AutoDebit.Mode = "cheque"
	_, err = svc.SaveRepaymentRules(ctx, r)
	require.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestLateFeeAmount(t *testing.T) {
	fixed := LateFee{Type: "fixed", FixedAmount: decimal.NewFromInt(200)}
	require.True(t, fixed.Amount(decimal.NewFromInt(5000)).Equal(decimal.NewFromInt(200)))

	pct := LateFee{Type: "percent", Percent: decimal.NewFromInt(2), MaxCap: decimal.NewFromInt(100)}
	require.True(t, pct.Amount(decimal.NewFromInt(4000)).Equal(decimal.NewFromInt(80)))
	require.True(t, pct.Amount(decimal.NewFromInt(10000)).Equal(decimal.NewFromInt(100)))
}

func TestCreditScoring(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService()

	cur, err := svc.CreditScoring(ctx)
	require.NoError(t, err)
	require.Equal(t, 100, cur.TotalWeight())

	cur.Factors = append(cur.Factors, Factor{Name: "Employer Rating", Weight: 10})
	_, err = svc.SaveCreditScoring(ctx, cur)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	cur.Factors[0].Weight -= 10
	saved, err := svc.SaveCreditScoring(ctx, cur)
	require.NoError(t, err)
	require.Len(t, saved.Factors, 5)
	added := saved.Factors[4]
	require.NotEmpty(t, added.ID)
	require.Equal(t, "Custom scoring parameter", added.Description)

	got, err := svc.CreditScoring(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Fatalf("credit scoring (-want +got):\n%s", diff)
	}

	blank := got
	blank.Factors = append([]Factor{}, got.Factors...)
	blank.Factors[0].Name = " "
	_, err = svc.SaveCreditScoring(ctx, blank)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}
