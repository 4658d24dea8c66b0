package generator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"userbench/internal/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedGenerator() *Generator {
	return NewWithClock(func() time.Time {
		return time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	})
}

func TestGenerate_Length(t *testing.T) {
	g := fixedGenerator()

	for _, count := range []int{0, 1, 2, 63, 500} {
		users, err := g.Generate(count, 1)
		require.NoError(t, err)
		assert.Len(t, users, count)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := fixedGenerator()

	first, err := g.Generate(250, 7)
	require.NoError(t, err)
	second, err := g.Generate(250, 7)
	require.NoError(t, err)

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, firstJSON, secondJSON)
}

func TestGenerate_Invariants(t *testing.T) {
	g := fixedGenerator()

	users, err := g.Generate(1000, 1)
	require.NoError(t, err)

	for _, u := range users {
		assert.GreaterOrEqual(t, u.Age, 18)
		assert.LessOrEqual(t, u.Age, 80)
		assert.Equal(t, 2024-u.Age, u.DateOfBirth.Year(), "dateOfBirth must match age for %s", u.Username)
		assert.Contains(t, []int{1, 2, 3}, len(u.Addresses))
		for _, a := range u.Addresses {
			assert.Equal(t, u.Addresses[0].Country, a.Country)
			assert.LessOrEqual(t, 2024-a.PurchaseDate.Year(), 4)
		}
	}
}

func TestGenerate_CountryPeriod(t *testing.T) {
	g := fixedGenerator()
	period := len(Countries())

	base, err := g.Generate(50, 3)
	require.NoError(t, err)
	shifted, err := g.Generate(50, 3+period)
	require.NoError(t, err)

	for i := range base {
		assert.Equal(t, base[i].Addresses[0].Country, shifted[i].Addresses[0].Country)
	}
}

func TestGenerate_Example(t *testing.T) {
	g := fixedGenerator()

	users, err := g.Generate(3, 1)
	require.NoError(t, err)
	require.Len(t, users, 3)

	first := users[0]
	assert.Equal(t, "user1", first.Username)
	assert.Equal(t, "user1@example.com", first.Email)
	assert.Equal(t, 19, first.Age)
	assert.False(t, first.IsMarried)
	assert.Len(t, first.Addresses, 2)
	assert.Equal(t, "Albania", first.Addresses[0].Country)
	assert.Equal(t, "Street 2 of User 1", first.Addresses[1].Street)
	assert.Equal(t, "City 2", first.Addresses[1].City)
	assert.Equal(t, time.Date(2005, time.June, 15, 0, 0, 0, 0, time.UTC), first.DateOfBirth)
	assert.Equal(t, time.Date(2023, time.June, 15, 0, 0, 0, 0, time.UTC), first.Addresses[0].PurchaseDate)

	second := users[1]
	assert.Equal(t, 20, second.Age)
	assert.True(t, second.IsMarried)
	assert.Len(t, second.Addresses, 3)

	third := users[2]
	assert.Equal(t, 21, third.Age)
	assert.Len(t, third.Addresses, 1)
}

func TestGenerate_InvalidArguments(t *testing.T) {
	g := fixedGenerator()

	tests := []struct {
		name       string
		count      int
		startIndex int
	}{
		{"negative count", -1, 1},
		{"zero start index", 10, 0},
		{"negative start index", 10, -5},
		{"index range overflows", 3, math.MaxInt - 1},
		{"index range overflows by one", 1, math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users, err := g.Generate(tt.count, tt.startIndex)
			assert.Nil(t, users)
			assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))

			users, err = g.GenerateRandom(tt.count, tt.startIndex, rand.New(rand.NewSource(1)))
			assert.Nil(t, users)
			assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
			assert.True(t, apperrors.Is(Validate(tt.count, tt.startIndex), apperrors.KindInvalidArgument))
		})
	}
}

func TestGenerate_LastIndexBeforeOverflow(t *testing.T) {
	users, err := fixedGenerator().Generate(3, math.MaxInt-3)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, fmt.Sprintf("user%d", math.MaxInt-1), users[2].Username)
}

func TestGenerateRandom_IsDistinctFromGenerate(t *testing.T) {
	g := fixedGenerator()

	random, err := g.GenerateRandom(200, 1, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	require.Len(t, random, 200)

	deterministic, err := g.Generate(200, 1)
	require.NoError(t, err)

	differences := 0
	for i := range random {
		assert.Equal(t, deterministic[i].Email, random[i].Email)
		assert.GreaterOrEqual(t, random[i].Age, 18)
		assert.LessOrEqual(t, random[i].Age, 77)
		assert.Equal(t, 2024-random[i].Age, random[i].DateOfBirth.Year())
		assert.NotEmpty(t, random[i].Addresses)
		if random[i].Age != deterministic[i].Age {
			differences++
		}
	}
	assert.Greater(t, differences, 0)
}

func TestGenerateRandom_InvalidCount(t *testing.T) {
	_, err := fixedGenerator().GenerateRandom(-3, 1, nil)
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidArgument))
}

func TestCountries_ReturnsCopy(t *testing.T) {
	list := Countries()
	list[0] = "Atlantis"
	assert.Equal(t, "Afghanistan", Countries()[0])
}
