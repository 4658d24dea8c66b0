// Package filter holds the backend-agnostic predicate used by query, update
// and delete. Each backend translates a Spec into its own query language; the
// in-memory Matches method is the reference semantics for those translations.
package filter

import (
	"slices"
	"time"

	"userbench/internal/apperrors"
	"userbench/internal/models"
)

// AgeRange is an inclusive [Min, Max] range, or [Min, ∞) when Open is set.
type AgeRange struct {
	Min  int  `json:"min"`
	Max  int  `json:"max,omitempty"`
	Open bool `json:"open,omitempty"`
}

func (r AgeRange) Contains(age int) bool {
	if age < r.Min {
		return false
	}
	return r.Open || age <= r.Max
}

// Spec matches users whose age falls in any AgeRange, whose date of birth is
// on or before BornOnOrBefore or on or after BornOnOrAfter, and who have at
// least one address in Countries purchased on or after PurchasedOnOrAfter.
type Spec struct {
	AgeRanges          []AgeRange `json:"ageRanges"`
	BornOnOrBefore     time.Time  `json:"bornOnOrBefore"`
	BornOnOrAfter      time.Time  `json:"bornOnOrAfter"`
	Countries          []string   `json:"countries"`
	PurchasedOnOrAfter time.Time  `json:"purchasedOnOrAfter"`
}

var benchmarkCountries = []string{"USA", "Canada", "London", "Romania", "Hungary", "Greece"}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Benchmark returns the predicate shared by every query, update and delete
// endpoint.
func Benchmark() Spec {
	return Spec{
		AgeRanges: []AgeRange{
			{Min: 30, Max: 45},
			{Min: 60, Open: true},
		},
		BornOnOrBefore:     date(1980, time.January, 1),
		BornOnOrAfter:      date(1990, time.January, 1),
		Countries:          slices.Clone(benchmarkCountries),
		PurchasedOnOrAfter: date(2018, time.January, 1),
	}
}

// Validate reports whether every backend can express s.
func (s Spec) Validate() error {
	if len(s.AgeRanges) == 0 {
		return apperrors.QueryTranslation("filter has no age ranges")
	}
	for i, r := range s.AgeRanges {
		if r.Min < 0 {
			return apperrors.QueryTranslation("age range %d has negative minimum %d", i, r.Min)
		}
		if !r.Open && r.Max < r.Min {
			return apperrors.QueryTranslation("age range %d is inverted: [%d, %d]", i, r.Min, r.Max)
		}
	}
	if s.BornOnOrBefore.IsZero() || s.BornOnOrAfter.IsZero() {
		return apperrors.QueryTranslation("filter date of birth bounds are not set")
	}
	if len(s.Countries) == 0 {
		return apperrors.QueryTranslation("filter has no countries")
	}
	for _, c := range s.Countries {
		if c == "" {
			return apperrors.QueryTranslation("filter has an empty country")
		}
	}
	if s.PurchasedOnOrAfter.IsZero() {
		return apperrors.QueryTranslation("filter purchase date bound is not set")
	}
	return nil
}

func (s Spec) matchesAge(age int) bool {
	for _, r := range s.AgeRanges {
		if r.Contains(age) {
			return true
		}
	}
	return false
}

func (s Spec) matchesBirth(dob time.Time) bool {
	return !dob.After(s.BornOnOrBefore) || !dob.Before(s.BornOnOrAfter)
}

func (s Spec) matchesAddress(a models.Address) bool {
	return slices.Contains(s.Countries, a.Country) && !a.PurchaseDate.Before(s.PurchasedOnOrAfter)
}

// Matches evaluates s against u in memory.
func (s Spec) Matches(u models.User) bool {
	if !s.matchesAge(u.Age) || !s.matchesBirth(u.DateOfBirth) {
		return false
	}
	return slices.ContainsFunc(u.Addresses, s.matchesAddress)
}

// Count returns how many users in users match s.
func (s Spec) Count(users []models.User) int64 {
	var n int64
	for _, u := range users {
		if s.Matches(u) {
			n++
		}
	}
	return n
}
