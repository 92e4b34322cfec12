package utils

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// avatarPalette gives each initial a stable background color.
var avatarPalette = []string{
	"#4f46e5", "#0891b2", "#059669", "#d97706", "#dc2626",
	"#7c3aed", "#db2777", "#2563eb", "#65a30d", "#ea580c",
}

// DefaultAvatar builds a deterministic initial-letter avatar for accounts
// registered without a profile picture, returned as an SVG data URL.
func DefaultAvatar(username string) string {
	initial := "?"
	for _, r := range strings.ToUpper(username) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			initial = string(r)
			break
		}
	}

	var sum int
	for _, r := range username {
		sum += int(r)
	}
	color := avatarPalette[sum%len(avatarPalette)]

	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="128" height="128" viewBox="0 0 128 128">`+
		`<rect width="128" height="128" rx="64" fill="%s"/>`+
		`<text x="64" y="64" dy="0.35em" text-anchor="middle" font-family="Arial, sans-serif" font-size="56" fill="#ffffff">%s</text>`+
		`</svg>`, color, initial)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
