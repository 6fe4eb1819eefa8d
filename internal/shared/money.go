package shared

import "github.com/shopspring/decimal"

// Cents converts a monetary amount to integer cents. Comparisons between
// payments and order totals are cent-exact, never float equality.
func Cents(d decimal.Decimal) int64 {
	return d.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

// SameAmount reports whether two monetary amounts are equal to the cent.
func SameAmount(a, b decimal.Decimal) bool {
	return Cents(a) == Cents(b)
}

// SumAmounts adds a list of monetary amounts.
func SumAmounts(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
