package cache

import (
	"math"
	"time"
)

// RetentionScore rates how much an entry deserves to stay cached:
//
//	priority * (accessCount + 1) / ln(ageSeconds + 1)
//
// where age is measured from the last access. At age zero the divisor is
// zero and the score is +Inf, or 0 when the numerator is zero.
func RetentionScore(e *Entry, now time.Time) float64 {
	age := now.Sub(e.LastAccessedAt).Seconds()
	if age < 0 {
		age = 0
	}

	numerator := float64(e.Priority) * float64(e.AccessCount+1)
	divisor := math.Log1p(age)
	if divisor == 0 {
		if numerator == 0 {
			return 0
		}
		return math.Copysign(math.Inf(1), numerator)
	}
	return numerator / divisor
}

// selectVictim picks the entry with the lowest score. Expired entries go
// first. Ties fall to the older entry, then to insertion order.
func selectVictim(entries map[Key]*Entry, now time.Time) *Entry {
	var (
		victim      *Entry
		victimScore float64
	)

	for _, e := range entries {
		score := RetentionScore(e, now)
		if e.IsExpired(now) {
			score = math.Inf(-1)
		}

		if victim == nil || evictsBefore(e, score, victim, victimScore) {
			victim = e
			victimScore = score
		}
	}
	return victim
}

func evictsBefore(a *Entry, aScore float64, b *Entry, bScore float64) bool {
	if aScore != bScore {
		return aScore < bScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}
