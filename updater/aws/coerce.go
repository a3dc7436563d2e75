package aws

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pixelfederation/cloud-price-index/catalog"
)

const unboundedToken = "Inf"

// parseNumber reads catalog numerics such as "0.0104000000", "4 GiB", "1,952 GiB" or "Inf".
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if fields := strings.Fields(s); len(fields) > 0 {
		s = fields[0]
	}
	s = strings.ReplaceAll(s, ",", "")
	if strings.EqualFold(s, unboundedToken) {
		return catalog.Unbounded, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse %q as a number: %w", raw, err)
	}
	switch {
	case math.IsNaN(v):
		return 0, fmt.Errorf("couldn't parse %q as a number: not a number", raw)
	case math.IsInf(v, 1):
		return catalog.Unbounded, nil
	case math.IsInf(v, -1):
		return 0, fmt.Errorf("couldn't parse %q as a number: negative infinity", raw)
	}
	return v, nil
}

// roundTo rounds half away from zero to the given number of decimal places.
func roundTo(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
