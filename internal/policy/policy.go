package policy

import (
	"strings"

	engerr "github.com/ggonzalez94/swap-engine/internal/errors"
)

// CheckVenueAllowed enforces the --enable-venues allowlist. An empty list
// allows every venue.
func CheckVenueAllowed(allowlist []string, venueName string) error {
	if len(allowlist) == 0 {
		return nil
	}
	norm := normalize(venueName)
	for _, allowed := range allowlist {
		if normalize(allowed) == norm {
			return nil
		}
	}
	return engerr.New(engerr.CodeBlocked, "venue blocked by --enable-venues policy")
}

// FilterVenues keeps only the venues the allowlist permits, preserving
// order. An empty allowlist keeps everything.
func FilterVenues(allowlist []string, venueNames []string) []string {
	if len(allowlist) == 0 {
		return venueNames
	}
	var out []string
	for _, name := range venueNames {
		if CheckVenueAllowed(allowlist, name) == nil {
			out = append(out, name)
		}
	}
	return out
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
