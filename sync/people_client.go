// ABOUTME: Google People API contact syncer for won and advancing opportunities
// ABOUTME: Finds by email, fills missing fields or creates; every API failure is transient
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/agencyops/pipeline"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/people/v1"
)

var (
	// ErrTransient wraps every failure talking to the address book. Callers
	// record it and carry on.
	ErrTransient = errors.New("transient contact sync failure")
	ErrNoToken   = errors.New("no access token available for contact sync")
)

const personFields = "names,emailAddresses,phoneNumbers,organizations,metadata"

// PeopleSyncer upserts contacts into Google Contacts.
type PeopleSyncer struct {
	tokens oauth2.TokenSource
	opts   []option.ClientOption
	logger zerolog.Logger
}

var _ pipeline.ContactSyncer = (*PeopleSyncer)(nil)

// NewPeopleSyncer creates a syncer. fallback is used when a call carries no
// access token and may be nil. opts are appended to the API client options.
func NewPeopleSyncer(fallback oauth2.TokenSource, logger zerolog.Logger, opts ...option.ClientOption) *PeopleSyncer {
	return &PeopleSyncer{
		tokens: fallback,
		opts:   opts,
		logger: logger.With().Str("component", "sync").Logger(),
	}
}

// NewPeopleClient creates a People API service authenticated by ts.
func NewPeopleClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*people.Service, error) {
	if ts == nil {
		return nil, ErrNoToken
	}
	all := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}, opts...)
	service, err := people.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create People service: %w", err)
	}
	return service, nil
}

// UpsertContact implements pipeline.ContactSyncer and returns the contact's
// resource name.
func (s *PeopleSyncer) UpsertContact(ctx context.Context, token string, fields pipeline.ContactFields) (string, error) {
	ts := s.tokens
	if token != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}
	svc, err := NewPeopleClient(ctx, ts, s.opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransient, err)
	}

	want := personFor(fields)

	existing, err := s.find(ctx, svc, fields)
	if err != nil {
		return "", s.transient("find contact", err)
	}

	if existing == nil {
		created, err := svc.People.CreateContact(want).Context(ctx).Do()
		if err != nil {
			return "", s.transient("create contact", err)
		}
		s.logger.Info().Str("contact", created.ResourceName).Msg("contact created")
		return created.ResourceName, nil
	}

	mask := mergeInto(existing, want)
	if mask == "" {
		return existing.ResourceName, nil
	}
	updated, err := svc.People.UpdateContact(existing.ResourceName, existing).
		UpdatePersonFields(mask).
		Context(ctx).
		Do()
	if err != nil {
		return "", s.transient("update contact", err)
	}
	s.logger.Info().Str("contact", updated.ResourceName).Str("fields", mask).Msg("contact updated")
	return updated.ResourceName, nil
}

// find returns the previously synced contact, or the first search hit whose
// email matches, or nil.
func (s *PeopleSyncer) find(ctx context.Context, svc *people.Service, fields pipeline.ContactFields) (*people.Person, error) {
	if fields.ExternalID != "" {
		p, err := svc.People.Get(fields.ExternalID).PersonFields(personFields).Context(ctx).Do()
		if err == nil {
			return p, nil
		}
		var apiErr *googleapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != 404 {
			return nil, err
		}
		// deleted on the provider side; fall back to email lookup
	}

	if strings.TrimSpace(fields.Email) == "" {
		return nil, nil
	}
	resp, err := svc.People.SearchContacts().
		Query(fields.Email).
		ReadMask(personFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	var candidates []*people.Person
	for _, r := range resp.Results {
		candidates = append(candidates, r.Person)
	}
	match, _ := NewContactMatcher(candidates).FindMatch(fields.Email)
	return match, nil
}

func (s *PeopleSyncer) transient(op string, err error) error {
	ev := s.logger.Warn().Err(err).Str("op", op)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		ev = ev.Int("status", apiErr.Code)
	}
	ev.Msg("contact sync call failed")
	return fmt.Errorf("%w: failed to %s: %w", ErrTransient, op, err)
}

func personFor(f pipeline.ContactFields) *people.Person {
	p := &people.Person{}
	if name := strings.TrimSpace(f.Name); name != "" {
		p.Names = []*people.Name{{UnstructuredName: name}}
	}
	if email := strings.TrimSpace(f.Email); email != "" {
		p.EmailAddresses = []*people.EmailAddress{{Value: email}}
	}
	if phone := strings.TrimSpace(f.Phone); phone != "" {
		p.PhoneNumbers = []*people.PhoneNumber{{Value: phone}}
	}
	if f.Organization != "" || f.Role != "" {
		p.Organizations = []*people.Organization{{Name: f.Organization, Title: f.Role}}
	}
	return p
}
