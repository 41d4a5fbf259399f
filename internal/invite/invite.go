// Package invite generates household invite codes and renders them as QR
// codes that a second device can scan to join.
package invite

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
)

// CodeLength is the number of characters in a generated invite code.
const CodeLength = 6

// alphabet omits characters that are easy to confuse when read aloud or
// typed: 0/O, 1/I/L.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// maxByte is the largest multiple of len(alphabet) that fits in a byte.
// Random bytes at or above it are discarded so every character is equally
// likely.
const maxByte = 256 - 256%len(alphabet)

// NewCode returns a random invite code.
func NewCode() string {
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("invite: read random: %v", err))
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			code = append(code, alphabet[int(b)%len(alphabet)])
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code)
}

// Normalize trims and uppercases a code entered by a user. Lookups compare
// the normalized code exactly.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Payload is the JSON content encoded in an invite QR code.
type Payload struct {
	HouseholdID string `json:"household_id"`
	Name        string `json:"name"`
	Code        string `json:"code"`
	Type        string `json:"type"`
}

const payloadType = "household_invite"

// QRRenderer renders invite payloads to PNG images.
type QRRenderer struct {
	size  int
	level qrcode.RecoveryLevel
}

// NewQRRenderer returns a renderer producing size x size images. level is one
// of L, M, Q or H and defaults to M.
func NewQRRenderer(size int, level string) *QRRenderer {
	var l qrcode.RecoveryLevel
	switch level {
	case "L":
		l = qrcode.Low
	case "Q":
		l = qrcode.High
	case "H":
		l = qrcode.Highest
	default:
		l = qrcode.Medium
	}
	if size <= 0 {
		size = 256
	}
	return &QRRenderer{size: size, level: l}
}

// PNG encodes the invite for a household.
func (r *QRRenderer) PNG(householdID, name, code string) ([]byte, error) {
	data, err := json.Marshal(Payload{
		HouseholdID: householdID,
		Name:        name,
		Code:        code,
		Type:        payloadType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invite payload: %w", err)
	}

	qr, err := qrcode.New(string(data), r.level)
	if err != nil {
		return nil, fmt.Errorf("create qr code: %w", err)
	}

	png, err := qr.PNG(r.size)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return png, nil
}

// ParsePayload decodes scanned QR content and returns the normalized code.
func ParsePayload(content string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(content), &p); err != nil {
		return Payload{}, fmt.Errorf("unmarshal invite payload: %w", err)
	}
	if p.Type != payloadType {
		return Payload{}, fmt.Errorf("invalid invite type: %s", p.Type)
	}
	p.Code = Normalize(p.Code)
	if p.Code == "" {
		return Payload{}, fmt.Errorf("invite payload has no code")
	}
	return p, nil
}
