package cost

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Tier is one slice of a graduated per-GB rate.
type Tier struct {
	Start      float64
	End        float64
	PricePerGB float64
}

// TieredCost prices volumeGB against graduated tiers. Tiers are walked in ascending order
// of start, each consuming at most its own width, until the volume is used up.
// Volume beyond the last tier is not charged.
func TieredCost(tiers []Tier, volumeGB decimal.Decimal) decimal.Decimal {
	sorted := slices.Clone(tiers)
	slices.SortStableFunc(sorted, func(a, b Tier) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.End, b.End))
	})

	remaining := volumeGB
	total := decimal.Zero
	for _, t := range sorted {
		if !remaining.IsPositive() {
			break
		}
		width := decimal.NewFromFloat(t.End).Sub(decimal.NewFromFloat(t.Start))
		if !width.IsPositive() {
			continue
		}
		used := decimal.Min(remaining, width)
		total = total.Add(used.Mul(decimal.NewFromFloat(t.PricePerGB)))
		remaining = remaining.Sub(used)
	}
	return total
}

// tiersFor returns the egress tiers of one source region.
func tiersFor(rows []ExternalTransferRow, region string) []Tier {
	var tiers []Tier
	for _, r := range rows {
		if r.FromRegionCode == region {
			tiers = append(tiers, Tier{Start: r.StartRange, End: r.EndRange, PricePerGB: r.PricePerGB})
		}
	}
	return tiers
}
