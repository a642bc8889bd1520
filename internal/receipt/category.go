package receipt

import "strings"

// Category is an expense category assigned to a receipt.
type Category string

const (
	CategoryFoodDining     Category = "FOOD_DINING"
	CategoryGroceries      Category = "GROCERIES"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryUtilities      Category = "UTILITIES"
	CategoryOfficeSupplies Category = "OFFICE_SUPPLIES"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryHealthMedical  Category = "HEALTH_MEDICAL"
	CategoryShopping       Category = "SHOPPING"
	CategoryServices       Category = "SERVICES"
	CategoryUncategorized  Category = "UNCATEGORIZED"
	CategoryOther          Category = "OTHER"
)

var categoryDisplayNames = map[Category]string{
	CategoryFoodDining:     "Food & Dining",
	CategoryGroceries:      "Groceries",
	CategoryTransportation: "Transportation",
	CategoryUtilities:      "Utilities",
	CategoryOfficeSupplies: "Office Supplies",
	CategoryEntertainment:  "Entertainment",
	CategoryHealthMedical:  "Health & Medical",
	CategoryShopping:       "Shopping",
	CategoryServices:       "Services",
	CategoryUncategorized:  "Uncategorized",
	CategoryOther:          "Other",
}

// DisplayName returns the human-readable name for the category.
func (c Category) DisplayName() string {
	if name, ok := categoryDisplayNames[c]; ok {
		return name
	}
	return categoryDisplayNames[CategoryOther]
}

// Categorize maps a merchant name and item names to a category using
// keyword rules. Checks run in a fixed priority order; the first match
// wins and OTHER is the default. This is deliberately independent of
// the language model so it can run on any receipt, parsed or not.
func Categorize(merchantName string, itemNames []string) Category {
	merchant := strings.ToLower(merchantName)
	items := strings.ToLower(strings.Join(itemNames, " "))

	containsAny := func(s string, keywords ...string) bool {
		for _, kw := range keywords {
			if strings.Contains(s, kw) {
				return true
			}
		}
		return false
	}

	switch {
	case containsAny(merchant, "walmart", "target", "kroger", "safeway", "grocery", "supermarket"):
		return CategoryGroceries
	case containsAny(merchant, "restaurant", "cafe", "pizza", "burger", "diner", "grill"):
		return CategoryFoodDining
	case containsAny(merchant, "gas", "shell", "exxon", "chevron", "uber", "lyft", "transit"):
		return CategoryTransportation
	case containsAny(merchant, "office", "staples") || containsAny(items, "paper", "pen", "toner"):
		return CategoryOfficeSupplies
	case containsAny(merchant, "pharmacy", "medical", "doctor", "hospital", "clinic"):
		return CategoryHealthMedical
	case containsAny(merchant, "electric", "water", "utility", "internet", "telecom"):
		return CategoryUtilities
	case containsAny(merchant, "cinema", "theater", "theatre", "arcade"):
		return CategoryEntertainment
	default:
		return CategoryOther
	}
}
