package model

type TagItem struct {
	ID       string `json:"id" firestore:"-"`
	Name     string `json:"name" firestore:"name"`
	ColorHex string `json:"color_hex,omitempty" firestore:"colorHex,omitempty"`
}
