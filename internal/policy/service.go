// Package policy holds the system-wide settings documents (loan limits,
// security, repayment, credit scoring) and the loan product master data.
package policy

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"loanadmin.org/internal/apperr"
	"loanadmin.org/internal/ids"
	"loanadmin.org/internal/repo"
	"loanadmin.org/internal/store"
)

type Service struct {
	loan      *repo.Document[LoanPolicy]
	security  *repo.Document[SecuritySettings]
	repayment *repo.Document[RepaymentRules]
	scoring   *repo.Document[CreditScoring]
	products  *repo.Collection[LoanProduct, *LoanProduct]
	now       func() time.Time
}

func NewService(kv store.KV, hooks ...repo.Hook) *Service {
	s := &Service{
		loan:      repo.NewDocument(kv, LoanPolicyKey, DefaultLoanPolicy),
		security:  repo.NewDocument(kv, SecurityKey, DefaultSecuritySettings),
		repayment: repo.NewDocument(kv, RepaymentKey, DefaultRepaymentRules),
		scoring:   repo.NewDocument(kv, CreditScoringKey, DefaultCreditScoring),
		products:  repo.NewCollection[LoanProduct](kv, LoanProductsKey),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, h := range hooks {
		s.loan.WithHook(h)
		s.security.WithHook(h)
		s.repayment.WithHook(h)
		s.scoring.WithHook(h)
		s.products.WithHook(h)
	}
	return s
}

// WithClock replaces the timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.products.WithClock(now)
	return s
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{apperr.ErrInvalidInput}, args...)...)
}

// Loan policy

func (s *Service) LoanPolicy(ctx context.Context) (LoanPolicy, error) {
	return s.loan.Get(ctx)
}

// Validate checks the field ranges and the cross-field rules.
func (p LoanPolicy) Validate() error {
	if err := apperr.Validate(p); err != nil {
		return err
	}
	switch {
	case !p.MinAmount.IsPositive():
		return invalid("min amount should be greater than 0")
	case p.MaxAmount.LessThanOrEqual(p.MinAmount):
		return invalid("max amount must be greater than min amount")
	case p.MaxTenureMonths <= p.MinTenureMonths:
		return invalid("max tenure must be greater than min tenure")
	case !p.MinEMIAmount.IsPositive():
		return invalid("minimum EMI amount must be greater than 0")
	case p.ProcessingFeePercent.IsNegative():
		return invalid("processing fee percent must not be negative")
	}
	return nil
}

// SaveLoanPolicy validates p, fills blank messages from the defaults and stamps UpdatedAt.
func (s *Service) SaveLoanPolicy(ctx context.Context, p LoanPolicy) (LoanPolicy, error) {
	if err := p.Validate(); err != nil {
		return LoanPolicy{}, err
	}
	def := DefaultLoanPolicy().ValidationMessages
	msgs := &p.ValidationMessages
	for _, m := range []struct{ dst *string; def string }{
		{&msgs.AmountOutOfRange, def.AmountOutOfRange},
		{&msgs.TenureOutOfRange, def.TenureOutOfRange},
		{&msgs.EMITooLow, def.EMITooLow},
		{&msgs.EMIToIncome, def.EMIToIncome},
	} {
		if strings.TrimSpace(*m.dst) == "" {
			*m.dst = m.def
		}
	}
	now := s.now()
	p.UpdatedAt = &now
	return s.loan.Save(ctx, p)
}

// Check returns the configured message of every rule req breaks.
func (p LoanPolicy) Check(req LoanRequest) []string {
	var out []string
	if req.Amount.LessThan(p.MinAmount) || req.Amount.GreaterThan(p.MaxAmount) {
		out = append(out, p.ValidationMessages.AmountOutOfRange)
	}
	if req.TenureMonths < p.MinTenureMonths || req.TenureMonths > p.MaxTenureMonths {
		out = append(out, p.ValidationMessages.TenureOutOfRange)
	}
	if req.EMI.LessThan(p.MinEMIAmount) {
		out = append(out, p.ValidationMessages.EMITooLow)
	}
	if req.MonthlyIncome.IsPositive() {
		limit := req.MonthlyIncome.Mul(decimal.NewFromInt(int64(p.MaxEMIToIncomePercent))).Div(decimal.NewFromInt(100))
		if req.EMI.GreaterThan(limit) {
			out = append(out, p.ValidationMessages.EMIToIncome)
		}
	}
	return out
}

// Security settings

func (s *Service) SecuritySettings(ctx context.Context) (SecuritySettings, error) {
	return s.security.Get(ctx)
}

// SaveSecuritySettings stores the password and 2FA settings. The API token is
// only changed through GenerateAPIToken and RevokeAPIToken.
func (s *Service) SaveSecuritySettings(ctx context.Context, in SecuritySettings) (SecuritySettings, error) {
	if err := apperr.Validate(in); err != nil {
		return SecuritySettings{}, err
	}
	return s.security.Modify(ctx, func(cur SecuritySettings) (SecuritySettings, error) {
		in.APIToken = cur.APIToken
		return in, nil
	})
}

// GenerateAPIToken replaces the API token with a fresh random one.
func (s *Service) GenerateAPIToken(ctx context.Context) (APIToken, error) {
	now := s.now()
	tok := APIToken{Token: uuid.NewString(), CreatedAt: &now}
	_, err := s.security.Modify(ctx, func(cur SecuritySettings) (SecuritySettings, error) {
		cur.APIToken = tok
		return cur, nil
	})
	if err != nil {
		return APIToken{}, err
	}
	return tok, nil
}

func (s *Service) RevokeAPIToken(ctx context.Context) error {
	_, err := s.security.Modify(ctx, func(cur SecuritySettings) (SecuritySettings, error) {
		cur.APIToken = APIToken{}
		return cur, nil
	})
	return err
}

// VerifyAPIToken reports whether token matches the current API token.
func (s *Service) VerifyAPIToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	cur, err := s.security.Get(ctx)
	if err != nil {
		return false, err
	}
	if cur.APIToken.Token == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(cur.APIToken.Token), []byte(token)) == 1, nil
}

// MinPasswordLength is the configured minimum password length.
func (s *Service) MinPasswordLength(ctx context.Context) (int, error) {
	cur, err := s.security.Get(ctx)
	if err != nil {
		return 0, err
	}
	return cur.PasswordPolicy.MinLength, nil
}

// CheckPassword applies the configured password policy.
func (s *Service) CheckPassword(ctx context.Context, password string) error {
	cur, err := s.security.Get(ctx)
	if err != nil {
		return err
	}
	return cur.PasswordPolicy.Check(password)
}

func (p PasswordPolicy) Check(password string) error {
	if n := len([]rune(password)); n < p.MinLength {
		return invalid("password must be at least %d characters", p.MinLength)
	}
	var upper, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case p.RequireUppercase && !upper:
		return invalid("password must contain an uppercase letter")
	case p.RequireNumber && !digit:
		return invalid("password must contain a number")
	case p.RequireSpecialChar && !special:
		return invalid("password must contain a special character")
	}
	return nil
}

// Repayment rules

func (s *Service) RepaymentRules(ctx context.Context) (RepaymentRules, error) {
	return s.repayment.Get(ctx)
}

func (r RepaymentRules) Validate() error {
	if err := apperr.Validate(r); err != nil {
		return err
	}
	fee := r.LateFee
	switch {
	case fee.Type == "percent" && fee.Percent.GreaterThan(decimal.NewFromInt(maxLateFeePct)):
		return invalid("late fee percentage cannot exceed %d%%", maxLateFeePct)
	case fee.Percent.IsNegative(), fee.FixedAmount.IsNegative(), fee.MaxCap.IsNegative():
		return invalid("late fee amounts must not be negative")
	}
	return nil
}

func (s *Service) SaveRepaymentRules(ctx context.Context, r RepaymentRules) (RepaymentRules, error) {
	if err := r.Validate(); err != nil {
		return RepaymentRules{}, err
	}
	return s.repayment.Save(ctx, r)
}

// Credit scoring

func (s *Service) CreditScoring(ctx context.Context) (CreditScoring, error) {
	return s.scoring.Get(ctx)
}

func (c CreditScoring) Validate() error {
	if err := apperr.Validate(c); err != nil {
		return err
	}
	if total := c.TotalWeight(); total != creditWeightTotal {
		return invalid("total weight must be exactly %d, got %d", creditWeightTotal, total)
	}
	return nil
}

// SaveCreditScoring stores the factors when their weights add up to 100.
// Factors without an id get one.
func (s *Service) SaveCreditScoring(ctx context.Context, c CreditScoring) (CreditScoring, error) {
	factors := make([]Factor, len(c.Factors))
	for i, f := range c.Factors {
		f.Name = strings.TrimSpace(f.Name)
		if f.ID == "" {
			f.ID = ids.New()
		}
		if f.Description == "" {
			f.Description = "Custom scoring parameter"
		}
		factors[i] = f
	}
	c.Factors = factors
	if err := c.Validate(); err != nil {
		return CreditScoring{}, err
	}
	return s.scoring.Save(ctx, c)
}
