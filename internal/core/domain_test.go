package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateItems(t *testing.T) {
	valid := item("1", "1", "100", "8.1")

	err := ValidateItems(nil)
	assert.Error(t, err, "at least one item is required")

	err = ValidateItems([]LineItem{valid})
	assert.NoError(t, err)

	noDesc := valid
	noDesc.Description = "  "
	err = ValidateItems([]LineItem{valid, noDesc})
	var verr *ItemValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, "description", verr.Field)

	zeroQty := valid
	zeroQty.Quantity = decimal.Zero
	err = ValidateItems([]LineItem{zeroQty})
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "quantity", verr.Field)

	zeroPrice := valid
	zeroPrice.UnitPrice = decimal.Zero
	err = ValidateItems([]LineItem{zeroPrice})
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, "unit_price", verr.Field)
}

func TestValidateDiscount(t *testing.T) {
	assert.NoError(t, ValidateDiscount(decimal.Zero))
	assert.NoError(t, ValidateDiscount(d("100")))
	assert.Error(t, ValidateDiscount(d("-1")))
	assert.Error(t, ValidateDiscount(d("100.01")))
}

func TestTimeEntryBillable(t *testing.T) {
	assert.True(t, TimeEntry{HourlyRate: rate("100"), Status: BillingUnbilled}.Billable())
	assert.False(t, TimeEntry{Status: BillingUnbilled}.Billable(), "no rate means non-billable")
	assert.False(t, TimeEntry{HourlyRate: rate("100"), Status: BillingInvoiced}.Billable())
}

func TestItemValidationErrorMessage(t *testing.T) {
	e := &ItemValidationError{Index: 2, Field: "quantity", Reason: "must be positive"}
	assert.Equal(t, "item 2: quantity: must be positive", e.Error())

	whole := &ItemValidationError{Index: -1, Field: "items", Reason: "at least one line item is required"}
	assert.Equal(t, "items: at least one line item is required", whole.Error())
}

func TestStoredStatusValid(t *testing.T) {
	for _, s := range []StoredStatus{StatusDraft, StatusIssued, StatusPaid, StatusCancelled} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, StoredStatus("").Valid())
	assert.False(t, StoredStatus("overdue").Valid())
	assert.False(t, StoredStatus("bogus").Valid())
}
