package model

import "hash/fnv"

// AvatarPalette is the fixed set of accent colors assigned to new profiles.
var AvatarPalette = []string{
	"#F2994A", "#EB5757", "#9B51E0", "#2F80ED",
	"#27AE60", "#56CCF2", "#F2C94C", "#BB6BD9",
}

// AvatarColor deterministically picks a palette color for userID.
func AvatarColor(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return AvatarPalette[h.Sum32()%uint32(len(AvatarPalette))]
}
