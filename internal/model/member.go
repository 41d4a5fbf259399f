package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// HouseholdMember is the display identity of a household participant. ID is
// the profile's MemberID, not the auth user id.
type HouseholdMember struct {
	ID          string `json:"id" firestore:"id"`
	Name        string `json:"name" firestore:"name"`
	Initials    string `json:"initials" firestore:"initials"`
	AccentColor string `json:"accent_color" firestore:"accentColor"`
	AvatarURL   string `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
}

// MatchKind explains how two members were matched.
type MatchKind int

const (
	NotMatched MatchKind = iota
	MatchedByID
	MatchedByName
)

func (k MatchKind) String() string {
	switch k {
	case MatchedByID:
		return "id"
	case MatchedByName:
		return "name"
	default:
		return "none"
	}
}

// MatchResult is the outcome of comparing two members.
type MatchResult struct {
	Kind MatchKind
}

func (r MatchResult) Matched() bool {
	return r.Kind != NotMatched
}

// MatchMembers compares two members by id, falling back to a case-insensitive
// trimmed name comparison for legacy records. Empty names never match.
func MatchMembers(a, b HouseholdMember) MatchResult {
	if a.ID != "" && a.ID == b.ID {
		return MatchResult{Kind: MatchedByID}
	}
	an := normalizeName(a.Name)
	bn := normalizeName(b.Name)
	if an != "" && an == bn {
		return MatchResult{Kind: MatchedByName}
	}
	return MatchResult{Kind: NotMatched}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ContainsMember reports whether m matches any member of list.
func ContainsMember(list []HouseholdMember, m HouseholdMember) bool {
	for _, other := range list {
		if MatchMembers(other, m).Matched() {
			return true
		}
	}
	return false
}

// Initials returns up to two uppercase initials for name, or "?".
func Initials(name string) string {
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	switch len(fields) {
	case 0:
		return "?"
	case 1:
		r, _ := utf8.DecodeRuneInString(fields[0])
		return strings.ToUpper(string(r))
	default:
		first, _ := utf8.DecodeRuneInString(fields[0])
		last, _ := utf8.DecodeRuneInString(fields[len(fields)-1])
		return strings.ToUpper(string(first) + string(last))
	}
}

// MemberFromProfile projects a profile into its household display identity.
func MemberFromProfile(p UserProfile) HouseholdMember {
	return HouseholdMember{
		ID:          p.MemberID,
		Name:        p.Name,
		Initials:    Initials(p.Name),
		AccentColor: p.AccentColor,
		AvatarURL:   p.AvatarURL,
	}
}
