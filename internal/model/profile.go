package model

import "strings"

// UnnamedProfile is used when neither a display name nor an email is known.
const UnnamedProfile = "Unnamed"

// UserProfile is the persisted profile for an authenticated user. ID equals
// the auth user id; MemberID is a stable pseudo-identity used to tag tasks and
// redemptions.
type UserProfile struct {
	ID             string `json:"id" firestore:"-"`
	Name           string `json:"name" firestore:"name"`
	Email          string `json:"email" firestore:"email"`
	AccentColor    string `json:"accent_color" firestore:"accentColor"`
	MemberID       string `json:"member_id" firestore:"memberId"`
	AvatarURL      string `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	Points         int    `json:"points" firestore:"points"`
	LifetimePoints int    `json:"lifetime_points" firestore:"lifetimePoints"`
}

// DefaultName derives a profile name from the session: display name, then the
// local part of the email, then UnnamedProfile.
func DefaultName(s Session) string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	if email := strings.TrimSpace(s.Email); email != "" {
		if at := strings.IndexByte(email, '@'); at > 0 {
			return email[:at]
		}
		return email
	}
	return UnnamedProfile
}

// DefaultProfile synthesizes the profile for a user who has none yet.
func DefaultProfile(s Session, memberID string) UserProfile {
	return UserProfile{
		ID:          s.UserID,
		Name:        DefaultName(s),
		Email:       s.Email,
		AccentColor: AvatarColor(s.UserID),
		MemberID:    memberID,
		AvatarURL:   s.PhotoURL,
	}
}

// ProfilePatch is the outcome of reconciling a stored profile with the live
// session. Needed is false when the stored profile can be used as is.
type ProfilePatch struct {
	Needed  bool
	Fields  []string
	Profile UserProfile
}

// ReconcileProfile fills fields missing from existing and refreshes a stale
// avatar from the session. memberID is used only when existing has none.
func ReconcileProfile(existing UserProfile, s Session, memberID string) ProfilePatch {
	p := existing
	var fields []string

	if p.ID == "" {
		p.ID = s.UserID
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = DefaultName(s)
		fields = append(fields, "name")
	}
	if p.Email == "" && s.Email != "" {
		p.Email = s.Email
		fields = append(fields, "email")
	}
	if p.MemberID == "" && memberID != "" {
		p.MemberID = memberID
		fields = append(fields, "memberId")
	}
	if p.AccentColor == "" {
		p.AccentColor = AvatarColor(p.ID)
		fields = append(fields, "accentColor")
	}
	if s.PhotoURL != "" && p.AvatarURL != s.PhotoURL {
		p.AvatarURL = s.PhotoURL
		fields = append(fields, "avatarURL")
	}

	return ProfilePatch{Needed: len(fields) > 0, Fields: fields, Profile: p}
}

// ClampPoints applies delta to points, never going below zero.
func ClampPoints(points, delta int) int {
	next := points + delta
	if next < 0 {
		return 0
	}
	return next
}
