package policy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Storage keys.
const (
	LoanPolicyKey     = "loanPolicies"
	SecurityKey       = "securitySettings"
	RepaymentKey      = "repaymentRules"
	CreditScoringKey  = "creditScoring"
	LoanProductsKey   = "loanProducts"
	maxEMIToIncomePct = 80
	maxLateFeePct     = 10
	creditWeightTotal = 100
)

// ValidationMessages are shown to loan officers when a request breaks the policy.
type ValidationMessages struct {
	AmountOutOfRange string `json:"amount_out_of_range"`
	TenureOutOfRange string `json:"tenure_out_of_range"`
	EMITooLow        string `json:"emi_too_low"`
	EMIToIncome      string `json:"emi_to_income"`
}

type LoanPolicy struct {
	MinAmount             decimal.Decimal    `json:"min_amount"`
	MaxAmount             decimal.Decimal    `json:"max_amount"`
	MinTenureMonths       int                `json:"min_tenure_months" validate:"gte=1"`
	MaxTenureMonths       int                `json:"max_tenure_months"`
	MinEMIAmount          decimal.Decimal    `json:"min_emi_amount"`
	MaxEMIToIncomePercent int                `json:"max_emi_to_income_percent" validate:"gte=1,lte=80"`
	AllowPreclosure       bool               `json:"allow_preclosure"`
	RequireLoanPurpose    bool               `json:"require_loan_purpose"`
	MaxLTVPercent         int                `json:"max_ltv_percent" validate:"gte=0,lte=100"`
	ProcessingFeePercent  decimal.Decimal    `json:"processing_fee_percent"`
	ValidationMessages    ValidationMessages `json:"validation_messages"`
	UpdatedAt             *time.Time         `json:"updated_at,omitempty"`
}

func DefaultLoanPolicy() LoanPolicy {
	return LoanPolicy{
		MinAmount:             decimal.NewFromInt(10000),
		MaxAmount:             decimal.NewFromInt(500000),
		MinTenureMonths:       6,
		MaxTenureMonths:       60,
		MinEMIAmount:          decimal.NewFromInt(1000),
		MaxEMIToIncomePercent: 50,
		AllowPreclosure:       true,
		RequireLoanPurpose:    true,
		MaxLTVPercent:         75,
		ProcessingFeePercent:  decimal.NewFromInt(2),
		ValidationMessages: ValidationMessages{
			AmountOutOfRange: "Requested amount must be within allowed min & max loan amount range.",
			TenureOutOfRange: "Loan tenure must be within configured tenure range (in months).",
			EMITooLow:        "EMI should be higher than minimum EMI configured.",
			EMIToIncome:      "EMI exceeds the allowed share of monthly income.",
		},
	}
}

// LoanRequest is the subset of an application the policy can judge.
type LoanRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	TenureMonths  int             `json:"tenure_months"`
	EMI           decimal.Decimal `json:"emi"`
	MonthlyIncome decimal.Decimal `json:"monthly_income"`
}

type PasswordPolicy struct {
	MinLength          int  `json:"min_length" validate:"gte=6"`
	RequireUppercase   bool `json:"require_uppercase"`
	RequireNumber      bool `json:"require_number"`
	RequireSpecialChar bool `json:"require_special_char"`
}

type TwoFactor struct {
	Enabled bool   `json:"enabled"`
	Method  string `json:"method" validate:"oneof=sms email authenticator"`
}

type APIToken struct {
	Token     string     `json:"token"`
	CreatedAt *time.Time `json:"created_at"`
}

type SecuritySettings struct {
	PasswordPolicy PasswordPolicy `json:"password_policy"`
	TwoFactor      TwoFactor      `json:"two_factor"`
	APIToken       APIToken       `json:"api_token"`
}

func DefaultSecuritySettings() SecuritySettings {
	return SecuritySettings{
		PasswordPolicy: PasswordPolicy{MinLength: 8, RequireUppercase: true, RequireNumber: true},
		TwoFactor:      TwoFactor{Method: "sms"},
	}
}

type AutoDebit struct {
	Enabled         bool   `json:"enabled"`
	Mode            string `json:"mode" validate:"oneof=netbanking upi mandate"`
	MandateRequired bool   `json:"mandate_required"`
}

type LateFee struct {
	Type        string          `json:"type" validate:"oneof=fixed percent"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	Percent     decimal.Decimal `json:"percent"`
	MaxCap      decimal.Decimal `json:"max_cap"`
}

// Amount is the fee charged on an overdue EMI. A zero MaxCap means no cap.
func (f LateFee) Amount(emi decimal.Decimal) decimal.Decimal {
	if f.Type != "percent" {
		return f.FixedAmount
	}
	fee := emi.Mul(f.Percent).Div(decimal.NewFromInt(100)).Round(2)
	if f.MaxCap.IsPositive() && fee.GreaterThan(f.MaxCap) {
		return f.MaxCap
	}
	return fee
}

type RepaymentRules struct {
	EMIDate     int       `json:"emi_date" validate:"gte=1,lte=28"`
	GracePeriod int       `json:"grace_period" validate:"gte=0"`
	AutoDebit   AutoDebit `json:"auto_debit"`
	LateFee     LateFee   `json:"late_fee"`
}

func DefaultRepaymentRules() RepaymentRules {
	return RepaymentRules{
		EMIDate:     5,
		GracePeriod: 3,
		AutoDebit:   AutoDebit{Mode: "netbanking"},
		LateFee: LateFee{
			Type:        "fixed",
			FixedAmount: decimal.NewFromInt(200),
			Percent:     decimal.NewFromInt(2),
			MaxCap:      decimal.NewFromInt(1000),
		},
	}
}

type Factor struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	Weight      int    `json:"weight" validate:"gte=0,lte=100"`
	Description string `json:"description"`
}

type CreditScoring struct {
	Factors  []Factor `json:"factors" validate:"dive"`
	MinScore int      `json:"min_score" validate:"gte=0,lte=100"`
}

// TotalWeight sums the factor weights.
func (c CreditScoring) TotalWeight() int {
	total := 0
	for _, f := range c.Factors {
		total += f.Weight
	}
	return total
}

func DefaultCreditScoring() CreditScoring {
	return CreditScoring{
		Factors: []Factor{
			{ID: "cibil_score", Name: "CIBIL Score", Weight: 30, Description: "Credit history of applicant"},
			{ID: "income_stability", Name: "Income Stability", Weight: 25, Description: "Salary consistency / business stability"},
			{ID: "loan_history", Name: "Previous Loan History", Weight: 20, Description: "Late EMI, defaults, closures"},
			{ID: "collateral", Name: "Collateral Strength", Weight: 25, Description: "Value & quality of pledged security"},
		},
		MinScore: 70,
	}
}
