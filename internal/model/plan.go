package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Plan is one row of the fixed price table.
type Plan struct {
	Name         string
	Price        decimal.Decimal // monthly price in the quote currency
	MonthlyLimit int64
	Purchasable  bool // free tier is seeded/operator-issued only
}

var plans = map[string]Plan{
	"free":     {Name: "free", Price: decimal.Zero, MonthlyLimit: 50, Purchasable: false},
	"starter":  {Name: "starter", Price: decimal.RequireFromString("5.00"), MonthlyLimit: 500, Purchasable: true},
	"pro":      {Name: "pro", Price: decimal.RequireFromString("10.00"), MonthlyLimit: 2000, Purchasable: true},
	"business": {Name: "business", Price: decimal.RequireFromString("25.00"), MonthlyLimit: 10000, Purchasable: true},
}

// LookupPlan resolves a plan by name (case-insensitive).
func LookupPlan(name string) (Plan, bool) {
	p, ok := plans[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Plans returns the full price table.
func Plans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		out = append(out, p)
	}
	return out
}
