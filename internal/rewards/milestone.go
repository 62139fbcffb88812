package rewards

import (
	"sort"

	"github.com/shopspring/decimal"

	"wager-rewards/internal/config"
	"wager-rewards/internal/snapshot"
)

// Tier is one milestone definition. Crossing its threshold of weighted
// wager unlocks its reward once per user per month.
type Tier struct {
	Name      string
	Threshold decimal.Decimal
	Reward    decimal.Decimal
}

// TiersFromConfig converts configured tiers, sorted ascending by threshold.
func TiersFromConfig(cfg []config.TierConfig) []Tier {
	tiers := make([]Tier, 0, len(cfg))
	for _, t := range cfg {
		tiers = append(tiers, Tier{
			Name:      t.Name,
			Threshold: decimal.NewFromFloat(t.Threshold),
			Reward:    decimal.NewFromFloat(t.Reward),
		})
	}
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].Threshold.LessThan(tiers[j].Threshold)
	})
	return tiers
}

// PaidSet is the already-paid (user, tier) pairs for one period, loaded
// from storage once per evaluation cycle.
type PaidSet map[string]struct{}

// PaidKey builds the set key for one user/tier pair.
func PaidKey(userID, tier string) string {
	return userID + "\x00" + tier
}

// Contains reports whether the pair is already paid.
func (s PaidSet) Contains(userID, tier string) bool {
	_, ok := s[PaidKey(userID, tier)]
	return ok
}

// Add marks the pair as paid.
func (s PaidSet) Add(userID, tier string) {
	s[PaidKey(userID, tier)] = struct{}{}
}

// EvaluateMilestones returns one obligation per (user, tier) pair that has
// newly crossed its threshold. Tiers are checked independently: a user who
// jumps several tiers in one snapshot is owed every uncrossed reward below
// their level, each with that tier's own amount.
func EvaluateMilestones(snap snapshot.Snapshot, tiers []Tier, paid PaidSet) []Obligation {
	var obligations []Obligation
	for _, entry := range snap.ByWeighted {
		for _, tier := range tiers {
			if entry.WeightedWagered.LessThan(tier.Threshold) {
				break
			}
			if paid.Contains(entry.UID, tier.Name) {
				continue
			}
			obligations = append(obligations, NewMilestoneObligation(
				entry.UID, entry.Username, tier, snap.Period.Month, snap.Period.Year,
			))
		}
	}
	return obligations
}
