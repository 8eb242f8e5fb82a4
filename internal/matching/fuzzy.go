package matching

// FuzzyThreshold is the minimum partial ratio for a fuzzy rule to match.
const FuzzyThreshold = 90.0

// PartialRatio scores, from 0 to 100, how well the shorter of a and b
// matches its best aligned window of the longer one. Windows overhanging
// either end of the longer string are included. A score is the indel
// similarity 2*LCS/(len(x)+len(y)). Empty input scores 0.
func PartialRatio(a, b string) float64 {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) == 0 {
		return 0
	}

	n := len(short)
	best := 0.0
	for start := -(n - 1); start < len(long); start++ {
		lo, hi := max(start, 0), min(start+n, len(long))
		if r := ratio(short, long[lo:hi]); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 100
	}
	return 100 * float64(2*lcs(a, b)) / float64(total)
}

// lcs returns the length of the longest common subsequence of a and b.
func lcs(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				cur[j] = prev[j-1] + 1
			case prev[j] >= cur[j-1]:
				cur[j] = prev[j]
			default:
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
