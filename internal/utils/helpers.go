package utils

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
)

// RecoverPanic logs a recovered panic instead of letting it kill the process.
// It must be deferred directly by the function it protects.
func RecoverPanic(logger zerolog.Logger, where string) {
	if r := recover(); r != nil {
		logger.Error().Interface("panic", r).Str("where", where).Msg("Recovered from panic")
	}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// RandomFloat returns a value uniformly drawn from [min, max] rounded to decimals.
func RandomFloat(rng *rand.Rand, min, max float64, decimals int) float64 {
	return Round(rng.Float64()*(max-min)+min, decimals)
}

// RandomInt returns an integer uniformly drawn from [min, max].
func RandomInt(rng *rand.Rand, min, max int) int {
	return min + rng.IntN(max-min+1)
}

// RandomDuration returns a duration uniformly drawn from [min, max].
func RandomDuration(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int64N(int64(max-min)+1))
}
