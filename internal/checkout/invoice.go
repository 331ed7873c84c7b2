package checkout

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceGenerator produces human readable invoice numbers. Uniqueness is
// finally enforced by the sales.invoice_number unique index; a collision
// makes the engine retry the whole checkout with a new number.
type InvoiceGenerator interface {
	Next(now time.Time) (string, error)
}

// RandomInvoices builds numbers like INV-20261016-153045-9F2C01AB from the
// UTC timestamp and 32 random bits.
type RandomInvoices struct{}

func (RandomInvoices) Next(now time.Time) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	suffix := strings.ToUpper(hex.EncodeToString(id[:4]))
	return "INV-" + now.UTC().Format("20060102-150405") + "-" + suffix, nil
}
