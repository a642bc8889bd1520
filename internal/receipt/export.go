package receipt

import (
	"fmt"
	"io"
	"strings"
)

// WriteCSV dumps the receipt list as CSV with the fixed column order
// Date,Merchant,Amount. Fields are quoted and embedded quotes doubled
// so merchant names containing commas or quotes survive.
func WriteCSV(w io.Writer, receipts []Receipt) error {
	if _, err := io.WriteString(w, "Date,Merchant,Amount\n"); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range receipts {
		date := r.Date.Format("01/02/2006")
		merchant := strings.ReplaceAll(r.MerchantName, `"`, `""`)
		line := fmt.Sprintf("%q,\"%s\",\"%s\"\n", date, merchant, r.TotalAmount.String())
		if _, err := io.WriteString(w, line); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	return nil
}
