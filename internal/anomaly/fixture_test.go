package anomaly

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-pipeline/internal/entity"
)

// memoryHistory is an in-memory HistoryReader for one user.
type memoryHistory struct {
	invoices []entity.HistoricalInvoice
	err      error
	reads    int
}

func (m *memoryHistory) add(supplier string, total float64, date, number string) uuid.UUID {
	id := uuid.New()
	m.invoices = append(m.invoices, entity.HistoricalInvoice{
		ID:            id,
		InvoiceNumber: number,
		SupplierName:  supplier,
		TotalAmount:   entity.FloatPtr(total),
		InvoiceDate:   date,
	})
	return id
}

func (m *memoryHistory) InvoicesByUser(context.Context, string) ([]entity.HistoricalInvoice, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	return append([]entity.HistoricalInvoice(nil), m.invoices...), nil
}

var errHistoryDown = errors.New("history unavailable")
