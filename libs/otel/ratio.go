package otelx

import (
	"fmt"
	"strconv"
	"strings"
)

func parseRatio(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 1 {
		return 0, fmt.Errorf("sampling ratio %v out of range [0,1]", f)
	}
	return f, nil
}
