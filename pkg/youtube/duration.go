package youtube

import (
	"strconv"
	"strings"
)

// parseISODuration converts the API's ISO 8601 duration (PT1H2M3S) to
// seconds. Malformed input yields 0; duration is cosmetic metadata and
// never worth failing a fetch over.
func parseISODuration(s string) int64 {
	s = strings.TrimPrefix(s, "P")
	var days, seconds int64

	if i := strings.Index(s, "D"); i >= 0 {
		days, _ = strconv.ParseInt(s[:i], 10, 64)
		s = s[i+1:]
	}
	s = strings.TrimPrefix(s, "T")

	num := ""
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'H' || r == 'M' || r == 'S':
			v, _ := strconv.ParseInt(num, 10, 64)
			num = ""
			switch r {
			case 'H':
				seconds += v * 3600
			case 'M':
				seconds += v * 60
			case 'S':
				seconds += v
			}
		default:
			return 0
		}
	}
	return days*86400 + seconds
}
