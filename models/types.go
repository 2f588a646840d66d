// ABOUTME: Data models for the agency pipeline core
// ABOUTME: Defines Opportunity, Activity, Customer, Package, Milestone and BillingAlert structs
package models

import (
	"strings"
	"time"
)

// Pool is the mutually exclusive partition an opportunity lives in.
type Pool string

const (
	PoolProspect   Pool = "prospect"
	PoolActiveDeal Pool = "active_deal"
	PoolNurture    Pool = "nurture"
	PoolDormant    Pool = "dormant"
	PoolSuppressed Pool = "suppressed"
	// PoolConverted is terminal: the opportunity no longer exists, a Customer does.
	PoolConverted Pool = "converted"
)

// LivePools are the pools that hold stored opportunity records.
var LivePools = []Pool{PoolProspect, PoolActiveDeal, PoolNurture, PoolDormant, PoolSuppressed}

// IsLive reports whether records of this pool are stored as opportunities.
func (p Pool) IsLive() bool {
	for _, lp := range LivePools {
		if lp == p {
			return true
		}
	}
	return false
}

// Label returns the display name of the pool.
func (p Pool) Label() string {
	switch p {
	case PoolProspect:
		return "Prospect"
	case PoolActiveDeal:
		return "Active Deal"
	case PoolNurture:
		return "Nurture"
	case PoolDormant:
		return "Dormant"
	case PoolSuppressed:
		return "Suppressed"
	case PoolConverted:
		return "Converted"
	}
	return string(p)
}

// ParsePool accepts either the stored value or the display label.
func ParsePool(s string) (Pool, bool) {
	norm := normalizeToken(s)
	for _, p := range append(append([]Pool{}, LivePools...), PoolConverted) {
		if norm == string(p) || norm == normalizeToken(p.Label()) {
			return p, true
		}
	}
	return "", false
}

// Stage is the sub-state of an opportunity while it is in the ActiveDeal pool.
type Stage string

const (
	StageNewProspect  Stage = "new_prospect"
	StageContacted    Stage = "contacted"
	StageQualified    Stage = "qualified"
	StageProposalSent Stage = "proposal_sent"
	StageNegotiation  Stage = "negotiation"
	StageClosedWon    Stage = "closed_won"
	StageClosedLost   Stage = "closed_lost"
)

// OpenStages are the ActiveDeal stages a record can rest in.
var OpenStages = []Stage{StageNewProspect, StageContacted, StageQualified, StageProposalSent, StageNegotiation}

// IsOpen reports whether the stage is one a live ActiveDeal record can hold.
func (s Stage) IsOpen() bool {
	for _, open := range OpenStages {
		if open == s {
			return true
		}
	}
	return false
}

// Label returns the display name of the stage.
func (s Stage) Label() string {
	switch s {
	case StageNewProspect:
		return "New Prospect"
	case StageContacted:
		return "Contacted"
	case StageQualified:
		return "Qualified"
	case StageProposalSent:
		return "Proposal Sent"
	case StageNegotiation:
		return "Negotiation"
	case StageClosedWon:
		return "Closed Won"
	case StageClosedLost:
		return "Closed Lost"
	}
	return string(s)
}

// ParseStage accepts either the stored value or the display label.
func ParseStage(s string) (Stage, bool) {
	norm := normalizeToken(s)
	all := append(append([]Stage{}, OpenStages...), StageClosedWon, StageClosedLost)
	for _, st := range all {
		if norm == string(st) || norm == normalizeToken(st.Label()) {
			return st, true
		}
	}
	return "", false
}

// OutreachStatus is Prospect-only stage metadata.
type OutreachStatus string

const (
	OutreachNew         OutreachStatus = "new"
	OutreachMessageSent OutreachStatus = "message_sent"
	OutreachReplied     OutreachStatus = "replied"
	// OutreachInterested is a trigger only; the record leaves Prospect.
	OutreachInterested OutreachStatus = "interested"
)

// Label returns the display name of the outreach status.
func (o OutreachStatus) Label() string {
	switch o {
	case OutreachNew, "":
		return "New"
	case OutreachMessageSent:
		return "Message Sent"
	case OutreachReplied:
		return "Replied"
	case OutreachInterested:
		return "Interested"
	}
	return string(o)
}

// ParseOutreach accepts values like "Message Sent" or "message_sent".
func ParseOutreach(s string) (OutreachStatus, bool) {
	switch OutreachStatus(normalizeToken(s)) {
	case OutreachNew:
		return OutreachNew, true
	case OutreachMessageSent:
		return OutreachMessageSent, true
	case OutreachReplied:
		return OutreachReplied, true
	case OutreachInterested:
		return OutreachInterested, true
	}
	return "", false
}

// Contact method channel types.
const (
	ChannelEmail    = "email"
	ChannelPhone    = "phone"
	ChannelLinkedIn = "linkedin"
	ChannelWhatsApp = "whatsapp"
	ChannelOther    = "other"
)

type ContactMethod struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Tag applied to records that reach Dormant through Closed Lost.
const TagLost = "lost"

// Opportunity is a sales lead tracked through the pipeline pools.
type Opportunity struct {
	ID                string          `json:"id"`
	DisplayName       string          `json:"display_name"`
	Organization      string          `json:"organization,omitempty"`
	Role              string          `json:"role,omitempty"`
	ContactMethods    []ContactMethod `json:"contact_methods,omitempty"`
	Pool              Pool            `json:"pool"`
	Stage             Stage           `json:"stage,omitempty"`
	Outreach          OutreachStatus  `json:"outreach,omitempty"`
	Score             int             `json:"score"`
	Value             *int64          `json:"value,omitempty"` // in cents
	Tags              []string        `json:"tags,omitempty"`
	NurtureReason     string          `json:"nurture_reason,omitempty"`
	ExternalContactID string          `json:"external_contact_id,omitempty"`
	CustomerID        string          `json:"customer_id,omitempty"`
	ScoredSteps       []string        `json:"scored_steps,omitempty"`     // steps that already added to Score
	ConvertingSince   *time.Time      `json:"converting_since,omitempty"` // set while a Closed Won conversion holds the record
	Activities        []Activity      `json:"activities"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// PrimaryEmail returns the first email contact method.
func (o *Opportunity) PrimaryEmail() string {
	return firstOfType(o.ContactMethods, ChannelEmail)
}

// PrimaryPhone returns the first phone or WhatsApp contact method.
func (o *Opportunity) PrimaryPhone() string {
	if phone := firstOfType(o.ContactMethods, ChannelPhone); phone != "" {
		return phone
	}
	return firstOfType(o.ContactMethods, ChannelWhatsApp)
}

// HasTag reports whether the opportunity carries the tag.
func (o *Opportunity) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasScored reports whether the named step has already added to the score.
func (o *Opportunity) HasScored(step string) bool {
	for _, s := range o.ScoredSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (o *Opportunity) Clone() *Opportunity {
	c := *o
	c.ContactMethods = append([]ContactMethod(nil), o.ContactMethods...)
	c.Tags = append([]string(nil), o.Tags...)
	c.ScoredSteps = append([]string(nil), o.ScoredSteps...)
	c.Activities = append([]Activity(nil), o.Activities...)
	if o.ConvertingSince != nil {
		ts := *o.ConvertingSince
		c.ConvertingSince = &ts
	}
	if o.Value != nil {
		v := *o.Value
		c.Value = &v
	}
	return &c
}

// Customer is the durable record an opportunity becomes on Closed Won.
type Customer struct {
	ID                  string          `json:"id"`
	SourceOpportunityID string          `json:"source_opportunity_id"`
	DisplayName         string          `json:"display_name"`
	Organization        string          `json:"organization,omitempty"`
	Email               string          `json:"email,omitempty"`
	Phone               string          `json:"phone,omitempty"`
	ContactMethods      []ContactMethod `json:"contact_methods,omitempty"`
	Value               *int64          `json:"value,omitempty"`
	ExternalContactID   string          `json:"external_contact_id,omitempty"`
	Activities          []Activity      `json:"activities,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

func firstOfType(methods []ContactMethod, channel string) string {
	for _, m := range methods {
		if m.Type == channel && strings.TrimSpace(m.Value) != "" {
			return strings.TrimSpace(m.Value)
		}
	}
	return ""
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
