package services

import (
	"fmt"
	"net/url"
	"regexp"

	qrcode "github.com/skip2/go-qrcode"
)

// BadgePrefix is the scheme a badge QR carries in front of the person id.
const BadgePrefix = "uid:"

// BadgeURL carries ids that do not fit the prefixed form, as ?uid=.
const BadgeURL = "https://attendance.local/badge"

// same shape the scanner accepts after a prefix
var reBadgeID = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)

// BadgePayload is the text encoded into a person's badge. Short or punctuated
// ids are carried in a URL query so the scanner reads them back unchanged.
func BadgePayload(personID string) string {
	if reBadgeID.MatchString(personID) {
		return BadgePrefix + personID
	}
	return BadgeURL + "?" + url.Values{"uid": {personID}}.Encode()
}

// BadgePNG renders the badge QR for personID at size pixels square.
func BadgePNG(personID string, size int) ([]byte, error) {
	if personID == "" {
		return nil, fmt.Errorf("badge: empty person id")
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(BadgePayload(personID), qrcode.Medium, size)
}
