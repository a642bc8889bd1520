package receipt

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("WriteCSV", func() {
	It("writes only the header for an empty list", func() {
		var buf strings.Builder
		Expect(WriteCSV(&buf, nil)).To(Succeed())
		Expect(buf.String()).To(Equal("Date,Merchant,Amount\n"))
	})

	It("formats dates as MM/DD/YYYY and quotes fields", func() {
		var buf strings.Builder
		Expect(WriteCSV(&buf, []Receipt{{
			MerchantName: "Corner Store",
			TotalAmount:  decimal.RequireFromString("12.34"),
			Date:         time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		}})).To(Succeed())

		Expect(buf.String()).To(Equal("Date,Merchant,Amount\n\"03/09/2024\",\"Corner Store\",\"12.34\"\n"))
	})

	It("doubles embedded quotes in merchant names", func() {
		var buf strings.Builder
		Expect(WriteCSV(&buf, []Receipt{{
			MerchantName: `Joe's "Best" Deli, Inc.`,
			TotalAmount:  decimal.RequireFromString("5.00"),
			Date:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		}})).To(Succeed())

		Expect(buf.String()).To(ContainSubstring(`"Joe's ""Best"" Deli, Inc."`))
	})
})
