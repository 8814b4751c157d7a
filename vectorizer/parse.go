package vectorizer

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	termSep   = "+"
	factorMul = "*"
	powerSep  = "^"
)

// ErrNoTerms is returned when a term description contains no usable terms.
var ErrNoTerms = errors.New("no valid terms provided")

// ErrUnknownLabel indicates a term referencing a label name that is not part
// of the vectorizer's label set.
type ErrUnknownLabel struct {
	Name string
}

func (e *ErrUnknownLabel) Error() string {
	return fmt.Sprintf("unknown label %q in term description", e.Name)
}

// Factor is one "label^power" component of a term. Index refers into the
// vectorizer's ordered label names.
type Factor struct {
	Index int
	Power float64
}

// Term is a product of factors, e.g. Teff^2*logg. Within a term every label
// appears at most once; repeated labels have their powers summed during
// parsing.
type Term []Factor

// Terms is the ordered list of non-bias basis terms.
type Terms []Term

// ParseTerms parses a human-readable term description such as
//
//	"Teff^4 + logg*Teff^3 + feh"
//
// against the ordered label names. Powers default to 1, powers of repeated
// labels within one term are summed, and zero-power factors are dropped
// (so "feh^0*Teff" reduces to "Teff"). Terms whose factors all vanish are
// skipped; a description with no surviving terms fails with ErrNoTerms.
func ParseTerms(description string, labels []string) (Terms, error) {
	index := make(map[string]int, len(labels))
	for i, name := range labels {
		index[name] = i
	}

	var terms Terms
	for _, descriptor := range strings.Split(description, termSep) {
		descriptor = strings.TrimSpace(descriptor)
		if descriptor == "" {
			return nil, fmt.Errorf("empty term in description %q", description)
		}

		// Accumulate powers per label, keeping first-appearance order.
		var order []int
		powers := make(map[int]float64)
		for _, part := range strings.Split(descriptor, factorMul) {
			name, power, err := parseFactor(part)
			if err != nil {
				return nil, err
			}
			i, ok := index[name]
			if !ok {
				return nil, &ErrUnknownLabel{Name: name}
			}
			if _, seen := powers[i]; !seen {
				order = append(order, i)
			}
			powers[i] += power
		}

		var term Term
		for _, i := range order {
			if p := powers[i]; p != 0 {
				term = append(term, Factor{Index: i, Power: p})
			}
		}
		if len(term) > 0 {
			terms = append(terms, term)
		}
	}

	if totalFactors(terms) == 0 {
		return nil, ErrNoTerms
	}

	return terms, nil
}

func parseFactor(s string) (string, float64, error) {
	s = strings.TrimSpace(s)
	name, powerText, found := strings.Cut(s, powerSep)
	name = strings.TrimSpace(name)
	if name == "" {
		return "", 0, fmt.Errorf("missing label name in factor %q", s)
	}
	if !found {
		return name, 1, nil
	}

	power, err := strconv.ParseFloat(strings.TrimSpace(powerText), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid power in factor %q: %w", s, err)
	}
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return "", 0, fmt.Errorf("non-finite power in factor %q", s)
	}

	return name, power, nil
}

func totalFactors(terms Terms) int {
	n := 0
	for _, t := range terms {
		n += len(t)
	}
	return n
}

// Describe renders the terms back into the canonical human-readable form.
// ParseTerms(terms.Describe(labels), labels) yields identical terms.
func (ts Terms) Describe(labels []string) string {
	var sb strings.Builder
	for i, term := range ts {
		if i > 0 {
			sb.WriteString(" " + termSep + " ")
		}
		for j, f := range term {
			if j > 0 {
				sb.WriteString(factorMul)
			}
			sb.WriteString(labels[f.Index])
			if f.Power != 1 {
				sb.WriteString(powerSep)
				sb.WriteString(strconv.FormatFloat(f.Power, 'g', -1, 64))
			}
		}
	}
	return sb.String()
}

func (ts Terms) clone() Terms {
	out := make(Terms, len(ts))
	for i, t := range ts {
		out[i] = append(Term(nil), t...)
	}
	return out
}

// BuildTerms generates a term description covering all label products up to
// the given orders: single-label powers up to order, and cross terms whose
// largest individual power does not exceed crossTermOrder. A negative
// crossTermOrder means order-1. Within each term labels are sorted by name,
// and terms are emitted lowest total order first.
func BuildTerms(labels []string, order, crossTermOrder int) string {
	if crossTermOrder < 0 {
		crossTermOrder = order - 1
	}

	maxTotal := order
	if crossTermOrder+1 > maxTotal {
		maxTotal = crossTermOrder + 1
	}

	var items []string
	for total := 1; total <= maxTotal; total++ {
		for _, combo := range multisets(len(labels), total) {
			names := make([]string, 0, len(combo))
			for i := range combo {
				if combo[i] > 0 {
					names = append(names, labels[i])
				}
			}
			sort.Strings(names)

			maxPower := 0
			for _, p := range combo {
				if p > maxPower {
					maxPower = p
				}
			}
			single := len(names) == 1
			if single && maxPower > order {
				continue
			}
			if !single && maxPower > crossTermOrder {
				continue
			}

			parts := make([]string, 0, len(names))
			for _, name := range names {
				p := 0
				for i, c := range combo {
					if labels[i] == name {
						p = c
						break
					}
				}
				if p > 1 {
					parts = append(parts, name+powerSep+strconv.Itoa(p))
				} else {
					parts = append(parts, name)
				}
			}
			items = append(items, strings.Join(parts, factorMul))
		}
	}

	return strings.Join(items, " "+termSep+" ")
}

// multisets enumerates all ways to distribute total units over n slots,
// i.e. all multisets of size total over n labels, as per-slot counts.
func multisets(n, total int) [][]int {
	var out [][]int
	counts := make([]int, n)

	var rec func(slot, remaining int)
	rec = func(slot, remaining int) {
		if slot == n-1 {
			counts[slot] = remaining
			out = append(out, append([]int(nil), counts...))
			counts[slot] = 0
			return
		}
		for c := remaining; c >= 0; c-- {
			counts[slot] = c
			rec(slot+1, remaining-c)
			counts[slot] = 0
		}
	}
	if n > 0 && total > 0 {
		rec(0, total)
	}
	return out
}
