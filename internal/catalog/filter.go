package catalog

// Filter selects playlists by name. Deny wins over Allow; an empty Allow
// list admits every name not denied.
type Filter struct {
	Allow []string
	Deny  []string
}

// NewFilter builds a filter from the whitelist/blacklist settings; a list
// whose toggle is off is ignored.
func NewFilter(useWhitelist bool, whitelist []string, useBlacklist bool, blacklist []string) Filter {
	var f Filter
	if useWhitelist {
		f.Allow = whitelist
	}
	if useBlacklist {
		f.Deny = blacklist
	}
	return f
}

// Allowed reports whether a playlist with this name should be scraped
func (f Filter) Allowed(name string) bool {
	for _, d := range f.Deny {
		if d == name {
			return false
		}
	}
	if len(f.Allow) == 0 {
		return true
	}
	for _, a := range f.Allow {
		if a == name {
			return true
		}
	}
	return false
}
