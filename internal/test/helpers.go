package test

import "fmt"

// Numbers returns n distinct phone numbers in ascending order.
func Numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("+3161%07d", i)
	}
	return out
}
