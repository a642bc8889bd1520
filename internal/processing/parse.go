package processing

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/checkstand/checkstand/internal/receipt"
)

// fallbackMerchantMaxLen bounds merchant names guessed from free text.
const fallbackMerchantMaxLen = 50

// Amount patterns tried in priority order: "$12.34" first, then a bare
// "12.34", then a whole-dollar "$12".
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+\.\d{2})`),
	regexp.MustCompile(`(\d+\.\d{2})`),
	regexp.MustCompile(`\$(\d+)`),
}

var currencyLinePattern = regexp.MustCompile(`\$\d+\.\d{2}`)

// ParseResponse converts the model's reply into a structured receipt.
// The model is asked for MERCHANT:/DATE:/TOTAL:/item lines but is not
// trusted to comply: unrecognized lines are skipped, malformed item
// lines dropped, and a missing total falls back to regex extraction
// over the response and then the original input. It never fails; the
// worst case is a mostly-empty receipt that still carries the raw
// text.
func ParseResponse(response, rawText string) receipt.Receipt {
	merchantName := receipt.UnknownMerchant
	date := time.Now()
	total := decimal.Zero
	var items []receipt.Item

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "MERCHANT:"):
			if v := strings.TrimSpace(afterColon(line)); v != "" {
				merchantName = v
			}

		case strings.HasPrefix(upper, "DATE:"):
			v := strings.TrimSpace(afterColon(line))
			if parsed, err := time.Parse("2006-01-02", v); err == nil {
				date = parsed
			}

		case strings.HasPrefix(upper, "TOTAL:"):
			v := strings.TrimSpace(afterColon(line))
			clean := strings.ReplaceAll(strings.ReplaceAll(v, "$", ""), ",", "")
			if parsed, err := decimal.NewFromString(strings.TrimSpace(clean)); err == nil {
				total = parsed
			} else if amount, ok := extractAmount(v); ok {
				total = amount
			}

		case strings.HasPrefix(line, "- "):
			if item, ok := parseItemLine(line[2:]); ok {
				items = append(items, item)
			}
		}
	}

	// Structured pass found no total: scan the whole response, then
	// the original input, for anything currency-shaped.
	if total.IsZero() {
		if amount, ok := extractAmount(response); ok {
			total = amount
		} else if amount, ok := extractAmount(rawText); ok {
			total = amount
		}
	}

	itemNames := make([]string, len(items))
	for i, item := range items {
		itemNames[i] = item.Name
	}

	return receipt.Receipt{
		MerchantName: merchantName,
		TotalAmount:  total,
		Currency:     receipt.DefaultCurrency,
		Date:         date,
		Items:        items,
		Category:     receipt.Categorize(merchantName, itemNames),
		RawText:      rawText,
		LLMResponse:  response,
		CreatedAt:    time.Now(),
	}
}

func afterColon(line string) string {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return line[idx+1:]
	}
	return ""
}

// parseItemLine splits "name | qty | unit | total" into an item. Lines
// with fewer than four fields or unparseable prices are dropped.
func parseItemLine(line string) (receipt.Item, bool) {
	parts := strings.Split(line, " | ")
	if len(parts) < 4 {
		return receipt.Item{}, false
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return receipt.Item{}, false
	}

	quantity, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		quantity = 1
	}

	unitPrice, err := decimal.NewFromString(cleanPrice(parts[2]))
	if err != nil {
		return receipt.Item{}, false
	}

	totalPrice, err := decimal.NewFromString(cleanPrice(parts[3]))
	if err != nil {
		return receipt.Item{}, false
	}

	return receipt.NewItemWithTotal(name, quantity, unitPrice, totalPrice), true
}

func cleanPrice(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "$", ""))
}

// extractAmount finds the first currency-shaped value in s, trying the
// amount patterns in priority order.
func extractAmount(s string) (decimal.Decimal, bool) {
	for _, pattern := range amountPatterns {
		if match := pattern.FindStringSubmatch(s); match != nil {
			if amount, err := decimal.NewFromString(match[1]); err == nil {
				return amount, true
			}
		}
	}
	return decimal.Zero, false
}

// FallbackReceipt is the second-tier heuristic used when structured
// processing degrades: it scans the input and the model response for a
// merchant-looking line and the first non-zero currency-shaped value.
// The result is always a valid receipt shell, even if both guesses
// come up empty.
func FallbackReceipt(rawText, response string) receipt.Receipt {
	merchantName := receipt.UnknownMerchant
	total := decimal.Zero

	combined := rawText + "\n" + response
	for _, line := range strings.Split(combined, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)

		if merchantName == receipt.UnknownMerchant {
			if strings.Contains(lower, "store") || strings.Contains(lower, "market") || strings.Contains(lower, "shop") {
				merchantName = truncate(line, fallbackMerchantMaxLen)
			}
		}

		switch {
		case strings.Contains(lower, "total") && strings.Contains(line, "$"):
			if amount, ok := extractAmount(line); ok {
				total = amount
			}
		case strings.HasPrefix(lower, "total:"):
			if amount, ok := extractAmount(afterColon(line)); ok {
				total = amount
			}
		case currencyLinePattern.MatchString(line):
			if amount, ok := extractAmount(line); ok && total.IsZero() {
				total = amount
			}
		}
	}

	return receipt.Receipt{
		MerchantName: merchantName,
		TotalAmount:  total,
		Currency:     receipt.DefaultCurrency,
		Date:         time.Now(),
		Category:     receipt.CategoryUncategorized,
		RawText:      rawText,
		LLMResponse:  response,
		CreatedAt:    time.Now(),
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
