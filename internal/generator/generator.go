// Package generator builds the synthetic users the benchmark inserts.
//
// Generate is deterministic: the same (count, startIndex) always yields the
// same users for a given generation year. GenerateRandom is the separate,
// non-reproducible variant and is never used in place of Generate.
package generator

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"userbench/internal/apperrors"
	"userbench/internal/models"
)

const (
	MinAge   = 18
	AgeSpan  = 63 // ages cycle through [18, 80]
	MaxAge   = MinAge + AgeSpan - 1
	maxAddrs = 3
)

type Generator struct {
	now func() time.Time
}

func New() *Generator {
	return &Generator{now: time.Now}
}

// NewWithClock fixes the clock used to derive the generation year.
func NewWithClock(now func() time.Time) *Generator {
	return &Generator{now: now}
}

func (g *Generator) year() int {
	return g.now().UTC().Year()
}

func validate(count, startIndex int) error {
	if count < 0 {
		return apperrors.InvalidArgument("numberOfUsers must be >= 0, got %d", count)
	}
	if startIndex < 1 {
		return apperrors.InvalidArgument("startIndex must be >= 1, got %d", startIndex)
	}
	if startIndex > math.MaxInt-count {
		return apperrors.InvalidArgument("startIndex %d + numberOfUsers %d overflows the user index", startIndex, count)
	}
	return nil
}

// Validate reports whether Generate and GenerateRandom accept count and
// startIndex, without building any users.
func Validate(count, startIndex int) error {
	return validate(count, startIndex)
}

// Generate returns count users for indexes [startIndex, startIndex+count).
func (g *Generator) Generate(count, startIndex int) ([]models.User, error) {
	if err := validate(count, startIndex); err != nil {
		return nil, err
	}

	year := g.year()
	users := make([]models.User, 0, count)
	for i := startIndex; i < startIndex+count; i++ {
		users = append(users, userAt(i, year))
	}
	return users, nil
}

func userAt(i, year int) models.User {
	country := countries[i%len(countries)]
	age := MinAge + i%AgeSpan
	purchaseDate := juneFifteenth(year - i%5)

	addresses := make([]models.Address, i%maxAddrs+1)
	for j := range addresses {
		addresses[j] = models.Address{
			Street:       fmt.Sprintf("Street %d of User %d", j+1, i),
			City:         fmt.Sprintf("City %d", j+1),
			Country:      country,
			PurchaseDate: purchaseDate,
		}
	}

	return models.User{
		Username:    fmt.Sprintf("user%d", i),
		FirstName:   fmt.Sprintf("FirstName%d", i),
		LastName:    fmt.Sprintf("LastName%d", i),
		Email:       fmt.Sprintf("user%d@example.com", i),
		Age:         age,
		DateOfBirth: juneFifteenth(year - age),
		IsMarried:   i%2 == 0,
		Addresses:   addresses,
	}
}

func juneFifteenth(year int) time.Time {
	return time.Date(year, time.June, 15, 0, 0, 0, 0, time.UTC)
}

// GenerateRandom returns count users whose attributes are drawn from rng.
// Identity fields still follow the index so emails stay unique per range.
func (g *Generator) GenerateRandom(count, startIndex int, rng *rand.Rand) ([]models.User, error) {
	if err := validate(count, startIndex); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	year := g.year()
	users := make([]models.User, 0, count)
	for i := startIndex; i < startIndex+count; i++ {
		addresses := make([]models.Address, rng.Intn(maxAddrs)+1)
		for j := range addresses {
			addresses[j] = models.Address{
				Street:       fmt.Sprintf("Street %d of User %d", j+1, i),
				City:         fmt.Sprintf("City %d", j+1),
				Country:      countries[rng.Intn(len(countries))],
				PurchaseDate: randomDate(rng, year-rng.Intn(5)),
			}
		}

		age := rng.Intn(60) + MinAge
		users = append(users, models.User{
			Username:    fmt.Sprintf("user%d", i),
			FirstName:   fmt.Sprintf("FirstName%d", i),
			LastName:    fmt.Sprintf("LastName%d", i),
			Email:       fmt.Sprintf("user%d@example.com", i),
			Age:         age,
			DateOfBirth: randomDate(rng, year-age),
			IsMarried:   rng.Float64() < 0.5,
			Addresses:   addresses,
		})
	}
	return users, nil
}

func randomDate(rng *rand.Rand, year int) time.Time {
	return time.Date(year, time.Month(rng.Intn(12)+1), rng.Intn(28)+1, 0, 0, 0, 0, time.UTC)
}
