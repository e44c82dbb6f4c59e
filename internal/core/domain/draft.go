package domain

import (
	"fmt"
	"sort"
)

// OrderDraft groups the cart lines owned by one vendor. It only lives for
// the duration of a checkout.
type OrderDraft struct {
	VendorID string
	Items    []OrderItem
	Subtotal int64
}

func (d OrderDraft) Lines() []CartLine {
	lines := make([]CartLine, 0, len(d.Items))
	for _, it := range d.Items {
		lines = append(lines, CartLine{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			ImageURL:  it.ImageURL,
			Quantity:  it.Quantity,
		})
	}
	return lines
}

// GroupByVendor partitions lines by the vendor in vendorOf. Drafts come back
// sorted by vendor id so settlements always run in the same order. Lines
// must already be valid.
func GroupByVendor(lines []CartLine, vendorOf map[string]string) ([]OrderDraft, error) {
	byVendor := make(map[string]*OrderDraft)
	for _, l := range lines {
		vendorID := vendorOf[l.ProductID]
		d, ok := byVendor[vendorID]
		if !ok {
			d = &OrderDraft{VendorID: vendorID}
			byVendor[vendorID] = d
		}
		d.Items = append(d.Items, OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			Price:     l.Price,
			ImageURL:  l.ImageURL,
		})
		subtotal, ok := AddAmounts(d.Subtotal, l.Amount())
		if !ok {
			return nil, fmt.Errorf("%w: vendor %s subtotal: %w", ErrInvalidCartLine, vendorID, ErrAmountOverflow)
		}
		d.Subtotal = subtotal
	}

	drafts := make([]OrderDraft, 0, len(byVendor))
	for _, d := range byVendor {
		drafts = append(drafts, *d)
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].VendorID < drafts[j].VendorID })
	return drafts, nil
}

func DraftsTotal(drafts []OrderDraft) (int64, error) {
	var total int64
	for _, d := range drafts {
		sum, ok := AddAmounts(total, d.Subtotal)
		if !ok {
			return 0, fmt.Errorf("%w: cart total: %w", ErrInvalidCartLine, ErrAmountOverflow)
		}
		total = sum
	}
	return total, nil
}
