package domain

// ─── Rewards ────────────────────────────────────────────────────────────────

// Voucher is a reward a citizen can redeem eco points for. The catalogue
// is fixed; the backend confirms every redemption against it.
type Voucher struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Cost int    `json:"cost"`
}

// Vouchers returns the redeemable catalogue, cheapest first.
func Vouchers() []Voucher {
	return []Voucher{
		{ID: "paytm-50", Name: "₹50 Paytm Voucher", Cost: 100},
		{ID: "grocery-75", Name: "₹75 Grocery Discount", Cost: 150},
		{ID: "amazon-100", Name: "₹100 Amazon Voucher", Cost: 200},
	}
}

// VoucherByID looks a voucher up in the catalogue.
func VoucherByID(id string) (Voucher, bool) {
	for _, v := range Vouchers() {
		if v.ID == id {
			return v, true
		}
	}
	return Voucher{}, false
}
