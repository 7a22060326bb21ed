package services

// lcg is the seeded generator behind the deterministic shuffle. Parameters
// (9301, 49297, 233280) give a period of at most 233280 states and the
// additive string seed collides easily ("ab" == "ba"). That is acceptable:
// the contract is reproducibility and rough fairness, not unpredictability,
// and existing fixtures depend on the exact sequence, so do not swap in a
// stronger generator.
type lcg struct {
	state int64
}

func newLCG(seed string) *lcg {
	var sum int64
	for _, r := range seed {
		sum += int64(r)
	}
	return &lcg{state: sum}
}

// next returns a uniform value in [0, 1).
func (g *lcg) next() float64 {
	g.state = (g.state*9301 + 49297) % 233280
	return float64(g.state) / 233280
}

// Shuffle returns a reproducible permutation of items driven by the string
// seed. The input slice is not modified. Same seed, same output, always.
func Shuffle[T any](items []T, seed string) []T {
	out := make([]T, len(items))
	copy(out, items)

	g := newLCG(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := int(g.next() * float64(i+1))
		out[i], out[j] = out[j], out[i]
	}
	return out
}
