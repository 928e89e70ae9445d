package discordapi

import "strings"

// Route returns path with every snowflake segment replaced by "{id}" and
// reaction emoji collapsed to "{emoji}", so it can be used as a low
// cardinality metric attribute.
func Route(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		switch {
		case isSnowflake(s):
			segs[i] = "{id}"
		case i > 0 && segs[i-1] == "reactions" && s != "":
			segs[i] = "{emoji}"
		}
	}
	return strings.Join(segs, "/")
}

// isSnowflake reports whether s looks like a Discord snowflake id.
func isSnowflake(s string) bool {
	if len(s) < 15 || len(s) > 21 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
