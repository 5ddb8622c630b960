package taxclass

import (
	"sort"
	"strconv"
	"strings"
)

// RateSet is a set of integer VAT percents. The zero value is not usable;
// create one with NewRateSet.
type RateSet map[int]struct{}

// NewRateSet returns a set holding the given rates.
func NewRateSet(rates ...int) RateSet {
	s := make(RateSet, len(rates))
	for _, r := range rates {
		s[r] = struct{}{}
	}
	return s
}

// Add inserts r and reports whether the set grew.
func (s RateSet) Add(r int) bool {
	if _, ok := s[r]; ok {
		return false
	}
	s[r] = struct{}{}
	return true
}

// AddAll inserts every rate of o.
func (s RateSet) AddAll(o RateSet) {
	for r := range o {
		s[r] = struct{}{}
	}
}

// Has reports whether r is in the set. A nil set holds nothing.
func (s RateSet) Has(r int) bool {
	_, ok := s[r]
	return ok
}

// Contains reports whether every rate of o is also in s.
func (s RateSet) Contains(o RateSet) bool {
	for r := range o {
		if !s.Has(r) {
			return false
		}
	}
	return true
}

// Sorted returns the rates in ascending order.
func (s RateSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Ints(out)
	return out
}

// Clone returns an independent copy.
func (s RateSet) Clone() RateSet {
	c := make(RateSet, len(s))
	c.AddAll(s)
	return c
}

// String renders the rates comma-joined in ascending order, e.g. "1,20".
func (s RateSet) String() string {
	parts := make([]string, 0, len(s))
	for _, r := range s.Sorted() {
		parts = append(parts, strconv.Itoa(r))
	}
	return strings.Join(parts, ",")
}

// ParseRateSet reads the String form back. Decimal values are rounded and
// unreadable parts are ignored.
func ParseRateSet(s string) RateSet {
	out := NewRateSet()
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
		part = strings.TrimSuffix(strings.TrimSpace(part), "%")
		if n, err := strconv.Atoi(part); err == nil {
			out.Add(n)
			continue
		}
		if f, err := strconv.ParseFloat(part, 64); err == nil {
			out.Add(int(f + 0.5))
		}
	}
	return out
}
