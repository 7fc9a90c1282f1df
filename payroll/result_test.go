package payroll_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func mixedComponents() []payroll.CalculationComponent {
	return []payroll.CalculationComponent{
		{Code: "BASIC_SALARY", Type: payroll.TypeEarning, Amount: dec("8000")},
		{Code: "MEAL_ALLOWANCE", Type: payroll.TypeEarning, Amount: dec("400.50")},
		{Code: "UNION_FEE", Type: payroll.TypeDeduction, Amount: dec("20")},
		{Code: "SOCIAL_PENSION", Type: payroll.TypePersonalDeduction, Amount: dec("640")},
		{Code: "EMPLOYER_PENSION", Type: payroll.TypeEmployerDeduction, Amount: dec("1280")},
		{Code: "WITHHOLDING", Type: payroll.TypeTax, Amount: dec("90")},
		{Code: "NOTE", Type: payroll.TypeOther, Amount: dec("5")},
		{Code: "MEDICAL", Type: payroll.TypeSocialInsurance, Amount: dec("160")},
	}
}

// expectedTotals sums components in one pass.
func expectedTotals(components []payroll.CalculationComponent) (earnings, deductions decimal.Decimal) {
	earnings, deductions = decimal.Zero, decimal.Zero
	for _, c := range components {
		switch c.Type {
		case payroll.TypeEarning:
			earnings = earnings.Add(c.Amount)
		case payroll.TypeDeduction, payroll.TypePersonalDeduction:
			deductions = deductions.Add(c.Amount)
		}
	}
	return earnings, deductions
}

// permutations calls fn with every ordering of items (Heap's algorithm).
func permutations(items []payroll.CalculationComponent, fn func([]payroll.CalculationComponent)) {
	var generate func(k int)
	generate = func(k int) {
		if k <= 1 {
			fn(items)
			return
		}
		for i := 0; i < k-1; i++ {
			generate(k - 1)
			if k%2 == 0 {
				items[i], items[k-1] = items[k-1], items[i]
			} else {
				items[0], items[k-1] = items[k-1], items[0]
			}
		}
		generate(k - 1)
	}
	generate(len(items))
}

func TestCalculationResult_TotalsIndependentOfOrder(t *testing.T) {
	// GIVEN: Eight components covering every component type
	// WHEN: Adding them in every possible order
	// THEN: After each add the totals equal a single pass over the added
	//       prefix, and the final totals never change with the order

	components := mixedComponents()
	wantEarnings, wantDeductions := expectedTotals(components)
	assertAmount(t, "8400.50", wantEarnings)
	assertAmount(t, "660", wantDeductions)

	orderings := 0
	permutations(components, func(order []payroll.CalculationComponent) {
		orderings++
		result := payroll.NewCalculationResult("emp-1", "2025-01")
		for i, c := range order {
			result.AddComponent(c)

			earnings, deductions := expectedTotals(order[:i+1])
			require.True(t, earnings.Equal(result.TotalEarnings), "earnings after %d adds", i+1)
			require.True(t, deductions.Equal(result.TotalDeductions), "deductions after %d adds", i+1)
		}
		require.True(t, wantEarnings.Equal(result.TotalEarnings))
		require.True(t, wantDeductions.Equal(result.TotalDeductions))
		require.True(t, wantEarnings.Sub(wantDeductions).Equal(result.NetPay))
		require.Len(t, result.Components, len(order))
	})

	assert.Equal(t, 40320, orderings)
}

func TestCalculationResult_NonCountedTypesStillListed(t *testing.T) {
	result := payroll.NewCalculationResult("emp-1", "2025-01")
	for _, c := range mixedComponents() {
		result.AddComponent(c)
	}

	assertAmount(t, "7740.50", result.NetPay)
	assert.Len(t, result.EarningsMap(), 2)
	assert.Len(t, result.DeductionsMap(), 6)
	_, ok := result.Component("EMPLOYER_PENSION")
	assert.True(t, ok)
}
