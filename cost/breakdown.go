package cost

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Breakdown labels, in display order.
const (
	LabelControlPlane        = "Control Plane"
	LabelControlPlaneStorage = "Control Plane Storage"
	LabelInstances           = "Instances"
	LabelStorage             = "Storage"
	LabelDataTransfer        = "Data Transfer"
	LabelTotal               = "Total"
)

type LineItem struct {
	Label  string
	Amount decimal.Decimal
}

// Breakdown is the itemized monthly cost of a deployment in one region. The last item is
// always the total.
type Breakdown struct {
	items []LineItem
}

func newBreakdown(items ...LineItem) *Breakdown {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	items = append(items, LineItem{Label: LabelTotal, Amount: round2(total)})
	return &Breakdown{items: items}
}

// Items returns a copy of the line items, total included.
func (b *Breakdown) Items() []LineItem {
	return append([]LineItem(nil), b.items...)
}

func (b *Breakdown) Get(label string) (decimal.Decimal, bool) {
	for _, item := range b.items {
		if item.Label == label {
			return item.Amount, true
		}
	}
	return decimal.Zero, false
}

func (b *Breakdown) Total() decimal.Decimal {
	return b.items[len(b.items)-1].Amount
}

// MarshalJSON renders the breakdown as an object whose keys keep the display order.
func (b *Breakdown) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, item := range b.items {
		if i > 0 {
			buf.WriteByte(',')
		}
		label, err := json.Marshal(item.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(label)
		buf.WriteByte(':')
		buf.WriteString(item.Amount.StringFixed(2))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
