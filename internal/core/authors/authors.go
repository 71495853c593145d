// Package authors validates author overlap between a parsed citation and a
// database record, tolerating the common citation styles
package authors

import "strings"

// Common surname prefixes (case-insensitive)
var surnamePrefixes = map[string]struct{}{
	"van": {}, "von": {}, "de": {}, "del": {}, "della": {}, "di": {},
	"da": {}, "al": {}, "el": {}, "la": {}, "le": {}, "ben": {},
	"ibn": {}, "mac": {}, "mc": {}, "o": {},
}

// Name suffixes to strip
var nameSuffixes = map[string]struct{}{
	"jr": {}, "sr": {}, "ii": {}, "iii": {}, "iv": {}, "v": {},
}

// Match reports whether at least one author in refAuthors plausibly
// matches one in foundAuthors.
//
// Two modes:
//   - Last-name-only mode: if most extracted authors lack first names or
//     initials, compare only surnames (with suffix matching for multi-word
//     surnames rendered inconsistently).
//   - Full mode: normalize both sides to "FirstInitial surname" and check
//     for set intersection.
func Match(refAuthors, foundAuthors []string) bool {
	if len(refAuthors) == 0 || len(foundAuthors) == 0 {
		return false
	}

	var refClean []string
	for _, a := range refAuthors {
		if a = strings.TrimSpace(a); a != "" {
			refClean = append(refClean, a)
		}
	}
	if len(refClean) == 0 {
		return false
	}

	lastNameOnly := 0
	for _, a := range refClean {
		if !hasGivenName(a) {
			lastNameOnly++
		}
	}

	if lastNameOnly > len(refClean)/2 {
		refSurnames := surnames(refAuthors)
		foundSurnames := surnames(foundAuthors)
		for _, rn := range refSurnames {
			for _, fn := range foundSurnames {
				if rn == fn {
					return true
				}
				// Compound surnames rendered inconsistently
				if strings.HasSuffix(fn, rn) || strings.HasSuffix(rn, fn) {
					return true
				}
			}
		}
		return false
	}

	refSet := make(map[string]struct{}, len(refAuthors))
	for _, a := range refAuthors {
		refSet[Normalize(a)] = struct{}{}
	}
	for _, a := range foundAuthors {
		if _, ok := refSet[Normalize(a)]; ok {
			return true
		}
	}
	return false
}

func surnames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if s := LastName(n); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// surnameFromParts extracts the surname from name parts, handling
// multi-word surnames and suffixes
func surnameFromParts(parts []string) string {
	if len(parts) == 0 {
		return ""
	}

	for len(parts) >= 2 {
		last := strings.TrimSuffix(strings.ToLower(parts[len(parts)-1]), ".")
		if _, ok := nameSuffixes[last]; !ok {
			break
		}
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return ""
	}

	// Three-part surnames like "De La Cruz"
	if len(parts) >= 3 {
		p := strings.TrimSuffix(strings.ToLower(parts[len(parts)-3]), ".")
		if _, ok := surnamePrefixes[p]; ok {
			return strings.Join(parts[len(parts)-3:], " ")
		}
	}

	// Two-part surnames like "Van Bavel"
	if len(parts) >= 2 {
		p := strings.TrimSuffix(strings.ToLower(parts[len(parts)-2]), ".")
		if _, ok := surnamePrefixes[p]; ok {
			return strings.Join(parts[len(parts)-2:], " ")
		}
	}

	return parts[len(parts)-1]
}

// Normalize reduces an author name to "FirstInitial surname" for comparison
func Normalize(name string) string {
	name = strings.TrimSpace(name)

	// AAAI "Surname, Initials" format
	if strings.Contains(name, ",") {
		parts := strings.SplitN(name, ",", 2)
		surname := strings.TrimSpace(parts[0])
		initials := ""
		if len(parts) > 1 {
			initials = strings.TrimSpace(parts[1])
		}
		initial := ' '
		if initials != "" {
			initial = []rune(initials)[0]
		}
		return string(initial) + " " + strings.ToLower(surname)
	}

	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}

	// Springer "Surname Initials" format: last part is 1-2 uppercase letters
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if len(last) <= 2 && isAllUpper(last) {
			surname := strings.Join(parts[:len(parts)-1], " ")
			return string([]rune(last)[0]) + " " + strings.ToLower(surname)
		}
	}

	// Standard "FirstName LastName"
	surname := surnameFromParts(parts)
	return string([]rune(parts[0])[0]) + " " + strings.ToLower(surname)
}

// LastName extracts the lowercased surname from an author name
func LastName(name string) string {
	name = strings.TrimSpace(name)

	// AAAI "Surname, Initials" format
	if i := strings.Index(name, ","); i >= 0 {
		return strings.ToLower(strings.TrimSpace(name[:i]))
	}

	parts := strings.Fields(name)
	if len(parts) == 0 {
		return ""
	}
	return strings.ToLower(surnameFromParts(parts))
}

// hasGivenName reports whether a name carries a first name or initial
// rather than being a bare surname
func hasGivenName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}

	if strings.Contains(name, ",") {
		parts := strings.SplitN(name, ",", 2)
		return len(parts) > 1 && strings.TrimSpace(parts[1]) != ""
	}

	var core []string
	for _, p := range strings.Fields(name) {
		l := strings.TrimSuffix(strings.ToLower(p), ".")
		if _, ok := nameSuffixes[l]; !ok {
			core = append(core, p)
		}
	}
	if len(core) <= 1 {
		return false
	}

	// Initials in non-last positions
	for _, p := range core[:len(core)-1] {
		if len(strings.TrimSuffix(p, ".")) == 1 {
			return true
		}
	}

	// Springer "Surname Initials" (last part 1-2 uppercase)
	last := core[len(core)-1]
	if len(last) <= 2 && isAllUpper(last) {
		return true
	}

	// First part looks like an actual first name followed by a surname
	first := strings.TrimSuffix(core[0], ".")
	if len(first) >= 2 && isUpperInitial(first) {
		if _, prefix := surnamePrefixes[strings.ToLower(first)]; !prefix && len(core) >= 2 {
			second := strings.TrimSuffix(core[1], ".")
			if len(second) >= 2 && isUpperInitial(second) {
				return true
			}
		}
	}

	return false
}

func isAllUpper(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func isUpperInitial(s string) bool {
	r := []rune(s)
	return len(r) > 0 && r[0] >= 'A' && r[0] <= 'Z'
}
