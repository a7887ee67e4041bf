package leakscan

import "math"

// ShannonEntropy returns the per-character Shannon entropy of s in bits.
func ShannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]float64)
	total := 0.0
	for _, r := range s {
		counts[r]++
		total++
	}
	var entropy float64
	for _, c := range counts {
		p := c / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}
