package model

// HouseholdSummary is a shared namespace grouping members, chores, tags and
// rewards. Membership lives on the remote side as a set of user ids.
type HouseholdSummary struct {
	ID         string `json:"id" firestore:"-"`
	Name       string `json:"name" firestore:"name"`
	InviteCode string `json:"invite_code,omitempty" firestore:"inviteCode,omitempty"`
}

// PlaceholderHouseholdID marks "no household selected". Stores bound to it
// hold an empty collection and never subscribe.
const PlaceholderHouseholdID = ""

// ContainsHousehold reports whether id is present in list.
func ContainsHousehold(list []HouseholdSummary, id string) bool {
	for _, h := range list {
		if h.ID == id {
			return true
		}
	}
	return false
}
