package model

import "time"

type RewardItem struct {
	ID          string `json:"id" firestore:"-"`
	Name        string `json:"name" firestore:"name"`
	Detail      string `json:"detail,omitempty" firestore:"detail,omitempty"`
	Cost        int    `json:"cost" firestore:"cost"`
	IconName    string `json:"icon_name,omitempty" firestore:"iconName,omitempty"`
	AccentColor string `json:"accent_color,omitempty" firestore:"accentColor,omitempty"`
}

// RewardRedemption is an append-only ledger entry. It is never mutated or
// deleted once written.
type RewardRedemption struct {
	ID          string    `json:"id" firestore:"-"`
	RewardID    string    `json:"reward_id" firestore:"rewardId"`
	RewardTitle string    `json:"reward_title" firestore:"rewardTitle"`
	MemberID    string    `json:"member_id" firestore:"memberId"`
	MemberName  string    `json:"member_name" firestore:"memberName"`
	RedeemedAt  time.Time `json:"redeemed_at" firestore:"redeemedAt"`
	Cost        int       `json:"cost" firestore:"cost"`
}
