package db

import (
	"errors"
	"fmt"
	"strconv"
)

var errDBUnavailable = errors.New("db unavailable")

func formatCap(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseCap(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse max_cap %q: %w", s, err)
	}
	return v, nil
}
