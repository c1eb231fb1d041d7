package core

// Totals is the aggregate shown above the history table.
type Totals struct {
	Income   int64
	Expenses int64
	Balance  int64
}

// TotalIncome sums the amounts of Income records.
func TotalIncome(list []Transaction) int64 {
	return sumOf(list, Income)
}

// TotalExpenses sums the amounts of Expenses records.
func TotalExpenses(list []Transaction) int64 {
	return sumOf(list, Expenses)
}

// Balance is income minus expenses.
func Balance(list []Transaction) int64 {
	return TotalIncome(list) - TotalExpenses(list)
}

// Aggregate computes all three figures in one pass. Records whose type is
// outside the enumeration count toward neither total.
func Aggregate(list []Transaction) Totals {
	var t Totals
	for _, tx := range list {
		switch tx.Type {
		case Income:
			t.Income += tx.Amount
		case Expenses:
			t.Expenses += tx.Amount
		}
	}
	t.Balance = t.Income - t.Expenses
	return t
}

func sumOf(list []Transaction, typ TransactionType) int64 {
	var sum int64
	for _, tx := range list {
		if tx.Type == typ {
			sum += tx.Amount
		}
	}
	return sum
}
