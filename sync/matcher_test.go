package sync

import (
	"testing"

	"google.golang.org/api/people/v1"
)

func TestMatchContactByEmail(t *testing.T) {
	alice := &people.Person{ResourceName: "people/1", EmailAddresses: []*people.EmailAddress{{Value: "alice@example.com"}}}
	bob := &people.Person{ResourceName: "people/2", EmailAddresses: []*people.EmailAddress{{Value: "bob@example.com"}, {Value: "Bob@Work.example"}}}

	matcher := NewContactMatcher([]*people.Person{alice, nil, bob})

	match, found := matcher.FindMatch("Alice@Example.com")
	if !found {
		t.Fatal("expected to find match for alice@example.com")
	}
	if match.ResourceName != "people/1" {
		t.Errorf("expected people/1, got %s", match.ResourceName)
	}

	match, found = matcher.FindMatch("bob@work.example")
	if !found || match.ResourceName != "people/2" {
		t.Errorf("expected secondary email to match bob")
	}

	if _, found := matcher.FindMatch("charlie@example.com"); found {
		t.Error("expected no match for charlie@example.com")
	}
	if _, found := matcher.FindMatch("  "); found {
		t.Error("expected blank email to never match")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice@Example.com", "alice@example.com"},
		{" alice.smith@example.com ", "alice.smith@example.com"},
		{"ALICE@EXAMPLE.COM", "alice@example.com"},
	}

	for _, tt := range tests {
		result := normalizeEmail(tt.input)
		if result != tt.expected {
			t.Errorf("normalizeEmail(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestMergeIntoKeepsExistingData(t *testing.T) {
	existing := &people.Person{
		Names:        []*people.Name{{UnstructuredName: "Kept"}},
		PhoneNumbers: []*people.PhoneNumber{{Value: "1"}},
	}
	want := &people.Person{
		Names:         []*people.Name{{UnstructuredName: "Ignored"}},
		PhoneNumbers:  []*people.PhoneNumber{{Value: "2"}},
		Organizations: []*people.Organization{{Name: "Acme"}},
	}

	mask := mergeInto(existing, want)
	if mask != "organizations" {
		t.Errorf("expected organizations mask, got %q", mask)
	}
	if existing.Names[0].UnstructuredName != "Kept" || existing.PhoneNumbers[0].Value != "1" {
		t.Error("existing fields were overwritten")
	}
	if mergeInto(existing, want) != "" {
		t.Error("second merge should change nothing")
	}
}
