package llm

import "fmt"

// receiptPromptFormat instructs the model to answer in the fixed
// line-oriented schema the parser expects. Small local models deviate
// from it often enough that the parser tolerates partial output.
const receiptPromptFormat = `Analyze this receipt text and extract structured information. Return the data in this exact format:

MERCHANT: [merchant name]
DATE: [date in yyyy-MM-dd format]
TOTAL: [total amount as decimal number]
ITEMS:
- [item name] | [quantity] | [unit price] | [total price]
- [item name] | [quantity] | [unit price] | [total price]

Receipt text:
%s

Please extract the information accurately. If any field is unclear, use reasonable defaults.`

// BuildReceiptPrompt builds the analysis prompt for a receipt's raw
// text.
func BuildReceiptPrompt(rawText string) string {
	return fmt.Sprintf(receiptPromptFormat, rawText)
}
