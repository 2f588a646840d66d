// ABOUTME: Matches address book contacts by email to avoid duplicate upserts
// ABOUTME: Also merges opportunity fields into a matched contact without clobbering data
package sync

import (
	"strings"

	"google.golang.org/api/people/v1"
)

type ContactMatcher struct {
	byEmail map[string]*people.Person
}

// NewContactMatcher indexes candidates by every email they carry.
func NewContactMatcher(candidates []*people.Person) *ContactMatcher {
	m := &ContactMatcher{byEmail: make(map[string]*people.Person)}
	for _, p := range candidates {
		if p == nil {
			continue
		}
		for _, e := range p.EmailAddresses {
			if email := normalizeEmail(e.Value); email != "" {
				if _, taken := m.byEmail[email]; !taken {
					m.byEmail[email] = p
				}
			}
		}
	}
	return m
}

// FindMatch looks for a contact by email.
func (m *ContactMatcher) FindMatch(email string) (*people.Person, bool) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, false
	}
	p, found := m.byEmail[normalized]
	return p, found
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// mergeInto fills fields the contact lacks and returns the update mask, or ""
// when nothing changed.
func mergeInto(p *people.Person, want *people.Person) string {
	var fields []string

	if len(p.Names) == 0 && len(want.Names) > 0 {
		p.Names = want.Names
		fields = append(fields, "names")
	}
	if len(p.PhoneNumbers) == 0 && len(want.PhoneNumbers) > 0 {
		p.PhoneNumbers = want.PhoneNumbers
		fields = append(fields, "phoneNumbers")
	}
	if len(p.Organizations) == 0 && len(want.Organizations) > 0 {
		p.Organizations = want.Organizations
		fields = append(fields, "organizations")
	}
	if len(p.EmailAddresses) == 0 && len(want.EmailAddresses) > 0 {
		p.EmailAddresses = want.EmailAddresses
		fields = append(fields, "emailAddresses")
	}

	return strings.Join(fields, ",")
}
