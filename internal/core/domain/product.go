package domain

type Product struct {
	ID       string
	VendorID string
	Name     string
	Price    int64
	ImageURL string
}
