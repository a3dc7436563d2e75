package cost

// cheapest returns the row with the lowest non-zero price among those accepted by keep.
// A zero price means the row has no published price. Ties keep the first row.
func cheapest[T any](rows []T, keep func(T) bool, price func(T) float64) (T, bool) {
	var (
		best  T
		found bool
	)
	for _, row := range rows {
		p := price(row)
		if p <= 0 || !keep(row) {
			continue
		}
		if !found || p < price(best) {
			best, found = row, true
		}
	}
	return best, found
}
