/*
Package simple calculates payroll from pre-itemized data.

PURPOSE:
  Spreadsheet imports and external payroll providers deliver amounts
  that were already computed. There is nothing to derive: the simple
  calculator only classifies each line item, sums it and reconciles the
  totals against the ones declared in the source.

KEY CONCEPTS:
  - Calculator: Sums earnings and personal deductions into a result
  - Mapper: Classifies the columns of an import row via the catalog
  - Reconcile: Compares computed totals with declared totals

TYPE RESOLUTION (deductions):
  1. The inline LineItem.Type, when set
  2. The catalog snapshot entry for the item code
  3. PERSONAL_DEDUCTION, with a warning

  Employer deductions appear as components but never reduce net pay.

REPRODUCIBILITY:
  Both the Calculator and the Mapper are pinned to a catalog revision.
  Reprocessing an import against the same revision gives the same
  classification, whatever has been published since.

SEE ALSO:
  - payroll/catalog.go: CatalogSnapshot and CatalogSource
  - mapper.go: Import row classification
*/
package simple

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/payroll"
)

// LineItem is one pre-computed amount. Type is optional.
type LineItem struct {
	Code   string
	Name   string
	Amount decimal.Decimal
	Type   payroll.ComponentType
}

// Calculator sums pre-itemized earnings and deductions.
type Calculator struct {
	catalog *payroll.CatalogSnapshot
	logger  *zap.Logger
}

// NewCalculator pins the calculator to catalog. A nil catalog resolves
// every untyped deduction to PERSONAL_DEDUCTION.
func NewCalculator(catalog *payroll.CatalogSnapshot, logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{catalog: catalog, logger: logger}
}

// CatalogRevision returns the revision the calculator resolves types against.
func (c *Calculator) CatalogRevision() int64 {
	if c.catalog == nil {
		return 0
	}
	return c.catalog.Revision
}

// Calculate builds a COMPLETED result. Zero amounts are skipped.
func (c *Calculator) Calculate(employeeID string, earnings, deductions []LineItem) *payroll.CalculationResult {
	result := payroll.NewCalculationResult(employeeID, "")
	log := c.logger.With(zap.String("employee_id", employeeID), zap.Int64("catalog_revision", c.CatalogRevision()))

	for _, item := range earnings {
		if item.Amount.IsZero() {
			continue
		}
		result.AddComponent(component(item, payroll.TypeEarning, "import"))
	}

	for _, item := range deductions {
		if item.Amount.IsZero() {
			continue
		}
		t, source := c.resolveDeductionType(item)
		if source == "default" {
			log.Warn("deduction component not in catalog, counting as personal deduction",
				zap.String("component", item.Code))
		}
		result.AddComponent(component(item, t, source))
	}

	result.Status = payroll.StatusCompleted
	log.Debug("simple payroll calculated",
		zap.Int("components", len(result.Components)),
		zap.String("net_pay", result.NetPay.StringFixed(2)))
	return result
}

func (c *Calculator) resolveDeductionType(item LineItem) (payroll.ComponentType, string) {
	if item.Type != "" {
		return item.Type, "inline"
	}
	if def, ok := c.catalog.Lookup(item.Code); ok {
		return def.Type, "catalog"
	}
	return payroll.TypePersonalDeduction, "default"
}

func component(item LineItem, t payroll.ComponentType, source string) payroll.CalculationComponent {
	name := item.Name
	if name == "" {
		name = item.Code
	}
	return payroll.CalculationComponent{
		Code:    item.Code,
		Name:    name,
		Type:    t,
		Amount:  item.Amount,
		Method:  payroll.MethodFixed,
		Details: map[string]any{"type_source": source},
	}
}
