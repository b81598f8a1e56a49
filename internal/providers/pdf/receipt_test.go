package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "USD 0.05", FormatMoney("USD", 5))
	assert.Equal(t, "USD 100.00", FormatMoney("USD", 10000))
	assert.Equal(t, "USD 1,234,567.89", FormatMoney("USD", 123456789))
	assert.Equal(t, "USD -12.30", FormatMoney("USD", -1230))
}

func TestGenerateReceiptProducesPDF(t *testing.T) {
	provider := New()
	reader, err := provider.GenerateReceipt(context.Background(), ReceiptData{
		IssuerName:    "Launchpad",
		OrderNumber:   "1799",
		DatePaid:      "2026-03-01",
		TransactionID: "pi_123",
		CustomerName:  "Ana",
		Currency:      "USD",
		Items:         []ReceiptItem{{Description: "SAS formation", Qty: 2, UnitPrice: 5000, Amount: 10000}},
		Total:         10000,
	})
	require.NoError(t, err)

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF")))
}
