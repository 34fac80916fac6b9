// Package economy maps correct-guess streaks to coin rewards.
package economy

import (
	"fmt"
	"strings"
)

// DecadeMode selects how streaks that are a multiple of ten (and not a
// milestone) are paid.
type DecadeMode string

const (
	// DecadeFlat pays Table.DecadeFlat.
	DecadeFlat DecadeMode = "flat"
	// DecadeBaseTimesFive pays Table.Base * 5.
	DecadeBaseTimesFive DecadeMode = "base5"
)

const (
	DefaultBase       = 20
	DefaultDecadeFlat = 100
)

// DefaultMilestones are the outsized rewards for specific streak values.
var DefaultMilestones = map[int]int{
	10:  200,
	25:  500,
	50:  1000,
	59:  1000,
	75:  1200,
	100: 1500,
}

// Table is a reward schedule. Milestones take precedence over the decade
// rule, which takes precedence over Base.
type Table struct {
	Base       int
	Milestones map[int]int
	DecadeMode DecadeMode
	DecadeFlat int
}

// DefaultTable returns the standard schedule with a flat decade bonus.
func DefaultTable() Table {
	milestones := make(map[int]int, len(DefaultMilestones))
	for k, v := range DefaultMilestones {
		milestones[k] = v
	}
	return Table{
		Base:       DefaultBase,
		Milestones: milestones,
		DecadeMode: DecadeFlat,
		DecadeFlat: DefaultDecadeFlat,
	}
}

// ParseDecadeMode accepts "flat" and "base5" (case-insensitive).
func ParseDecadeMode(s string) (DecadeMode, error) {
	switch DecadeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DecadeFlat:
		return DecadeFlat, nil
	case DecadeBaseTimesFive:
		return DecadeBaseTimesFive, nil
	}
	return "", fmt.Errorf("unknown decade mode %q", s)
}

// Reward returns the coins earned for reaching streak. Non-positive streaks
// earn nothing.
func (t Table) Reward(streak int) int {
	if streak <= 0 {
		return 0
	}
	if coins, ok := t.Milestones[streak]; ok {
		return nonNegative(coins)
	}
	if streak%10 == 0 {
		if t.DecadeMode == DecadeBaseTimesFive {
			return nonNegative(t.Base * 5)
		}
		return nonNegative(t.DecadeFlat)
	}
	return nonNegative(t.Base)
}

// CalculateReward applies the default table.
func CalculateReward(streak int) int {
	return defaultTable.Reward(streak)
}

var defaultTable = DefaultTable()

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
