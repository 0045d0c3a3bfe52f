// Package slug generates and validates the opaque, URL-safe parcel
// identifiers described in spec §3 and §6: a human-facing slug of the
// form "<carrier_prefix>-<code_fragment>-<random_hex>", at most 35
// characters, matching [a-z0-9-]+.
package slug

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"
)

const maxLen = 35

var validPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// trackingCodePattern is spec §4.3's tracking-code validator.
var trackingCodePattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// IsTrackingCodeValid reports whether code matches ^[A-Za-z0-9-]+$ and is non-empty.
func IsTrackingCodeValid(code string) bool {
	return code != "" && trackingCodePattern.MatchString(code)
}

// IsValid reports whether s is an acceptable slug: length <= 35 and
// matching ^[a-z0-9-]+$.
func IsValid(s string) bool {
	return len(s) <= maxLen && len(s) > 0 && validPattern.MatchString(s)
}

// Generate builds a new slug from a carrier uid and tracking code.
//
//	<first 5 alnum of carrier_uid>-<first 8 alnum lower of tracking_code>-<4-6 hex random bytes>
//
// The random suffix is 6 bytes (12 hex chars) whenever at least 12
// characters of the 35-character budget remain. The prefix and fragment
// caps keep the base at no more than 15 characters, so in practice the
// suffix is always 6 bytes; the smaller-suffix branches below only
// apply to a longer base.
func Generate(carrierUID, trackingCode string) (string, error) {
	prefix := alnumPrefix(carrierUID, 5)
	fragment := strings.ToLower(alnumPrefix(trackingCode, 8))

	base := prefix + "-" + fragment + "-"
	budget := maxLen - len(base)

	randBytes := 4
	if budget >= 12 {
		randBytes = 6
	} else if budget >= 8 {
		randBytes = 4
	} else if budget >= 4 {
		randBytes = 2
	} else {
		randBytes = 2
		base = base[:maxLen-4] // truncate hard if the fragment was unusually long
	}

	b := make([]byte, randBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	s := base + hex.EncodeToString(b)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s, nil
}

// alnumPrefix returns the first n alphanumeric runes of s.
func alnumPrefix(s string, n int) string {
	var sb strings.Builder
	for _, r := range s {
		if sb.Len() >= n {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
