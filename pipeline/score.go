// ABOUTME: Pure scoring rules for opportunity transitions
// ABOUTME: Score changes only through the deltas defined here
package pipeline

import (
	"sort"

	"github.com/harperreed/agencyops/models"
)

// Step describes a transition for scoring purposes.
type Step struct {
	From     models.Pool
	To       models.Pool
	Outreach models.OutreachStatus
	ToStage  models.Stage
}

// stageDelta is the score gained by advancing into an ActiveDeal stage.
var stageDelta = map[models.Stage]int{
	models.StageQualified:    15,
	models.StageProposalSent: 20,
	models.StageNegotiation:  10,
}

const (
	repliedDelta    = 10
	interestedDelta = 20
)

// Delta returns the score change for a step.
func Delta(s Step) int {
	switch {
	case s.From == models.PoolProspect && s.To == models.PoolActiveDeal:
		return interestedDelta
	case s.From == models.PoolProspect && s.To == models.PoolProspect && s.Outreach == models.OutreachReplied:
		return repliedDelta
	case s.From == models.PoolActiveDeal && s.To == models.PoolActiveDeal:
		return stageDelta[s.ToStage]
	}
	return 0
}

// Score applies a step to the current score.
func Score(current int, s Step) int {
	return current + Delta(s)
}

// StepKey names a scored step. A record earns each named step once, so
// moving back and forth between stages never raises the score again.
func StepKey(s Step) string {
	switch {
	case s.From == models.PoolProspect && s.To == models.PoolActiveDeal:
		return "interested"
	case s.From == models.PoolProspect && s.To == models.PoolProspect && s.Outreach == models.OutreachReplied:
		return "outreach:" + string(models.OutreachReplied)
	case s.From == models.PoolActiveDeal && s.To == models.PoolActiveDeal && s.ToStage != "":
		return "stage:" + string(s.ToStage)
	}
	return ""
}

// Advance applies a step to opp's score unless opp already earned it.
func Advance(opp *models.Opportunity, s Step) {
	d := Delta(s)
	if d == 0 {
		return
	}
	key := StepKey(s)
	if opp.HasScored(key) {
		return
	}
	opp.Score += d
	opp.ScoredSteps = append(opp.ScoredSteps, key)
}

// SortByScore orders opportunities by score, then most recently updated.
func SortByScore(opps []models.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].Score != opps[j].Score {
			return opps[i].Score > opps[j].Score
		}
		return opps[i].UpdatedAt.After(opps[j].UpdatedAt)
	})
}
