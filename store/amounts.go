package store

import "strconv"

// Amounts travel as decimal strings on the wire; arithmetic on microSTX fits
// comfortably in int64 for the ranges the indexer stores.

func parseAmount(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

func formatAmount(n int64) string {
	return strconv.FormatInt(n, 10)
}
