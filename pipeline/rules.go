// ABOUTME: Transition table for opportunities across pools and ActiveDeal stages
// ABOUTME: Plans a change purely: next record, score, log entry and side effects, with no I/O
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/agencyops/models"
)

// Change is a requested transition. Any combination of fields may be set;
// the table decides whether it is reachable.
type Change struct {
	Outreach models.OutreachStatus `json:"outreach,omitempty"`
	Pool     models.Pool           `json:"pool,omitempty"`
	Stage    models.Stage          `json:"stage,omitempty"`
	Note     string                `json:"note,omitempty"`
	// AccessToken is handed to the contact syncer as is.
	AccessToken string `json:"-"`
}

func (c Change) isNoteOnly() bool {
	return c.Outreach == "" && c.Pool == "" && c.Stage == "" && strings.TrimSpace(c.Note) != ""
}

func (c Change) isEmpty() bool {
	return c.Outreach == "" && c.Pool == "" && c.Stage == "" && strings.TrimSpace(c.Note) == ""
}

// plan is the fully computed outcome of a transition.
type plan struct {
	from    models.Pool
	next    *models.Opportunity // for conversions: the record as it will be handed to the emitter
	convert bool
	// claimed is the stored record carrying this conversion's claim
	claimed *models.Opportunity
	// syncContact asks for a best-effort contact upsert after commit
	syncContact bool
}

// conversionClaimTTL is how long a conversion claim blocks a Closed Won retry.
const conversionClaimTTL = 5 * time.Minute

// syncStages trigger a contact upsert when an ActiveDeal record reaches them.
var syncStages = map[models.Stage]bool{
	models.StageProposalSent: true,
	models.StageNegotiation:  true,
}

// target is where a change points, independent of where the record is.
type target struct {
	pool    models.Pool
	stage   models.Stage
	lost    bool
	convert bool
}

func resolveTarget(cur *models.Opportunity, ch Change) (target, error) {
	switch {
	case ch.Stage == models.StageClosedWon || ch.Pool == models.PoolConverted:
		if ch.Pool != "" && ch.Pool != models.PoolConverted && ch.Pool != models.PoolActiveDeal {
			return target{}, invalidf(cur, "Closed Won cannot target pool %s", ch.Pool.Label())
		}
		return target{pool: models.PoolConverted, convert: true}, nil

	case ch.Stage == models.StageClosedLost:
		if ch.Pool != "" && ch.Pool != models.PoolDormant && ch.Pool != models.PoolActiveDeal {
			return target{}, invalidf(cur, "Closed Lost cannot target pool %s", ch.Pool.Label())
		}
		return target{pool: models.PoolDormant, lost: true}, nil

	case ch.Stage != "":
		if !ch.Stage.IsOpen() {
			return target{}, invalidf(cur, "unknown stage %q", ch.Stage)
		}
		if ch.Pool != "" && ch.Pool != models.PoolActiveDeal {
			return target{}, invalidf(cur, "stage %s only exists in Active Deal", ch.Stage.Label())
		}
		return target{pool: models.PoolActiveDeal, stage: ch.Stage}, nil

	case ch.Pool != "":
		if !ch.Pool.IsLive() {
			return target{}, invalidf(cur, "unknown pool %q", ch.Pool)
		}
		return target{pool: ch.Pool}, nil
	}
	return target{}, invalidf(cur, "no target pool or stage")
}

// planTransition applies the transition table to cur. It never mutates cur.
func planTransition(cur *models.Opportunity, ch Change, now time.Time) (*plan, error) {
	if cur.Pool == models.PoolSuppressed {
		return nil, invalidf(cur, "suppressed opportunities are terminal")
	}
	if cur.ConvertingSince != nil {
		if ch.Stage == models.StageClosedWon || ch.Pool == models.PoolConverted {
			if now.Sub(*cur.ConvertingSince) < conversionClaimTTL {
				return nil, invalidf(cur, "conversion already in progress")
			}
			// an abandoned claim may be retried; customer creation is idempotent
		} else {
			return nil, invalidf(cur, "conversion in progress")
		}
	}
	if ch.isEmpty() {
		return nil, invalidf(cur, "empty change")
	}
	if ch.isNoteOnly() {
		return planNote(cur, ch.Note, now), nil
	}
	if ch.Outreach != "" {
		if ch.Pool != "" || ch.Stage != "" {
			return nil, invalidf(cur, "outreach cannot be combined with a pool or stage change")
		}
		return planOutreach(cur, ch, now)
	}

	t, err := resolveTarget(cur, ch)
	if err != nil {
		return nil, err
	}

	switch cur.Pool {
	case models.PoolProspect:
		return planFromProspect(cur, ch, t, now)
	case models.PoolActiveDeal:
		return planFromActiveDeal(cur, ch, t, now)
	case models.PoolNurture, models.PoolDormant:
		return planFromParked(cur, ch, t, now)
	}
	return nil, invalidf(cur, "unknown source pool %q", cur.Pool)
}

func planNote(cur *models.Opportunity, note string, now time.Time) *plan {
	next := cur.Clone()
	next.Activities = appendActivity(next.Activities,
		newActivity(now, models.ActivityNote, strings.TrimSpace(note), "", ""))
	next.UpdatedAt = now
	return &plan{from: cur.Pool, next: next}
}

func planOutreach(cur *models.Opportunity, ch Change, now time.Time) (*plan, error) {
	if cur.Pool != models.PoolProspect {
		return nil, invalidf(cur, "outreach status only applies to prospects")
	}

	switch ch.Outreach {
	case models.OutreachInterested:
		return planInterested(cur, ch, now), nil
	case models.OutreachMessageSent, models.OutreachReplied:
	default:
		return nil, invalidf(cur, "outreach cannot be set to %s", ch.Outreach.Label())
	}
	if cur.Outreach == ch.Outreach {
		return nil, invalidf(cur, "outreach is already %s", ch.Outreach.Label())
	}

	next := cur.Clone()
	next.Outreach = ch.Outreach
	Advance(next, Step{From: cur.Pool, To: cur.Pool, Outreach: ch.Outreach})
	next.Activities = appendActivity(next.Activities, newActivity(now, models.ActivityOutreach,
		withNote("Marked "+ch.Outreach.Label(), ch.Note), cur.Outreach.Label(), ch.Outreach.Label()))
	next.UpdatedAt = now
	return &plan{from: cur.Pool, next: next}, nil
}

func planInterested(cur *models.Opportunity, ch Change, now time.Time) *plan {
	next := cur.Clone()
	next.Pool = models.PoolActiveDeal
	next.Stage = models.StageNewProspect
	next.Outreach = ""
	Advance(next, Step{From: cur.Pool, To: models.PoolActiveDeal, ToStage: models.StageNewProspect})
	next.Activities = appendActivity(next.Activities, newActivity(now, models.ActivityPoolChange,
		withNote("Interested: moved to Active Deal at New Prospect", ch.Note),
		cur.Pool.Label(), models.PoolActiveDeal.Label()))
	next.UpdatedAt = now
	return &plan{from: cur.Pool, next: next}
}

func planFromProspect(cur *models.Opportunity, ch Change, t target, now time.Time) (*plan, error) {
	switch {
	case t.convert:
		return nil, invalidf(cur, "a prospect cannot be closed won")
	case t.lost:
		return nil, invalidf(cur, "a prospect cannot be closed lost")
	case t.pool == models.PoolActiveDeal:
		if t.stage != "" && t.stage != models.StageNewProspect {
			return nil, invalidf(cur, "a prospect enters Active Deal at New Prospect, not %s", t.stage.Label())
		}
		return planInterested(cur, ch, now), nil
	case t.pool == models.PoolNurture:
		if strings.TrimSpace(ch.Note) == "" {
			return nil, invalidf(cur, "moving to Nurture requires a reason")
		}
		return planMove(cur, ch, t, now), nil
	case t.pool == models.PoolDormant, t.pool == models.PoolSuppressed:
		return planMove(cur, ch, t, now), nil
	}
	return nil, invalidf(cur, "%s is not reachable from Prospect", t.pool.Label())
}

func planFromActiveDeal(cur *models.Opportunity, ch Change, t target, now time.Time) (*plan, error) {
	switch {
	case t.convert:
		return planConvert(cur, now), nil
	case t.lost:
		next := cur.Clone()
		next.Pool = models.PoolDormant
		next.Stage = ""
		if !next.HasTag(models.TagLost) {
			next.Tags = append(next.Tags, models.TagLost)
		}
		next.Activities = appendActivity(next.Activities, newActivity(now, models.ActivityStageChange,
			withNote("Closed Lost: moved to Dormant", ch.Note),
			cur.Stage.Label(), models.StageClosedLost.Label()))
		next.UpdatedAt = now
		return &plan{from: cur.Pool, next: next}, nil
	case t.pool == models.PoolActiveDeal:
		if t.stage == "" {
			return nil, invalidf(cur, "already in Active Deal; choose a stage")
		}
		if t.stage == cur.Stage {
			return nil, invalidf(cur, "already at %s", t.stage.Label())
		}
		next := cur.Clone()
		next.Stage = t.stage
		Advance(next, Step{From: cur.Pool, To: cur.Pool, ToStage: t.stage})
		next.Activities = appendActivity(next.Activities, newActivity(now, models.ActivityStageChange,
			withNote("Moved to "+t.stage.Label(), ch.Note), cur.Stage.Label(), t.stage.Label()))
		next.UpdatedAt = now
		return &plan{from: cur.Pool, next: next, syncContact: syncStages[t.stage]}, nil
	case t.pool == models.PoolNurture:
		if strings.TrimSpace(ch.Note) == "" {
			return nil, invalidf(cur, "moving to Nurture requires a reason")
		}
		return planMove(cur, ch, t, now), nil
	}
	return nil, invalidf(cur, "%s is not reachable from Active Deal", t.pool.Label())
}

// planFromParked handles Nurture and Dormant records.
func planFromParked(cur *models.Opportunity, ch Change, t target, now time.Time) (*plan, error) {
	switch {
	case t.convert:
		return planConvert(cur, now), nil
	case t.pool == models.PoolActiveDeal:
		stage := t.stage
		if stage == "" {
			stage = models.StageNewProspect
		}
		next := cur.Clone()
		next.Pool = models.PoolActiveDeal
		next.Stage = stage
		next.NurtureReason = ""
		next.Activities = appendActivity(next.Activities, newActivity(now, models.ActivityPoolChange,
			withNote(fmt.Sprintf("Reactivated to Active Deal at %s", stage.Label()), ch.Note),
			cur.Pool.Label(), models.PoolActiveDeal.Label()))
		next.UpdatedAt = now
		return &plan{from: cur.Pool, next: next, syncContact: syncStages[stage]}, nil
	}
	return nil, invalidf(cur, "%s is not reachable from %s", t.pool.Label(), cur.Pool.Label())
}

func planMove(cur *models.Opportunity, ch Change, t target, now time.Time) *plan {
	next := cur.Clone()
	next.Pool = t.pool
	next.Stage = ""
	next.Outreach = ""
	if t.pool == models.PoolNurture {
		next.NurtureReason = strings.TrimSpace(ch.Note)
	}
	next.Activities = appendActivity(next.Activities, newActivity(now, models.ActivityPoolChange,
		withNote("Moved to "+t.pool.Label(), ch.Note), cur.Pool.Label(), t.pool.Label()))
	next.UpdatedAt = now
	return &plan{from: cur.Pool, next: next}
}

func planConvert(cur *models.Opportunity, now time.Time) *plan {
	next := cur.Clone()
	next.Pool = models.PoolConverted
	next.UpdatedAt = now
	return &plan{from: cur.Pool, next: next, convert: true, syncContact: true}
}

func withNote(description, note string) string {
	if note = strings.TrimSpace(note); note != "" {
		return description + ": " + note
	}
	return description
}
