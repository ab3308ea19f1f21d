package fat32

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// validShortNameChars are the punctuation characters DOS allows in an 8.3
// name besides letters and digits.
const validShortNameChars = "$%'-_@~`!(){}^#&"

// stripAccents decomposes the name and drops the combining marks, so
// "résumé" contributes "resume" to its short form.
var stripAccents = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// GenerateShortName derives a unique 8.3 name for a long name. The taken
// set holds the short names already present in the directory.
//
// The long name is folded to the DOS character set first. When the folded
// candidate collides, a ~N tail is substituted into the stem; after a few
// attempts the stem is replaced by a four-digit hash of the original name
// so pathological prefixes converge quickly.
func GenerateShortName(longName string, taken map[ShortName]bool) ShortName {
	stem, extension := splitForShortName(longName)

	candidate := MustShortName(clip(stem, 8), clip(extension, 3))
	if !taken[candidate] && !candidate.IsDot() {
		return candidate
	}

	for n := 1; ; n++ {
		var base string
		if n < 5 {
			base = stem
		} else {
			base = fmt.Sprintf("%04X", hashName(longName))
		}

		tail := fmt.Sprintf("~%d", n)
		candidate = MustShortName(clip(base, 8-len(tail))+tail, clip(extension, 3))
		if !taken[candidate] {
			return candidate
		}
	}
}

// splitForShortName folds a long name into legal uppercase stem and
// extension parts, before any length limits apply.
func splitForShortName(longName string) (stem, extension string) {
	folded, _, err := transform.String(stripAccents, longName)
	if err != nil {
		folded = longName
	}
	folded = strings.ToUpper(folded)

	stem = folded
	if dot := strings.LastIndex(folded, "."); dot >= 0 {
		stem = folded[:dot]
		extension = folded[dot+1:]
	}

	stem = foldShortNameChars(stem)
	extension = foldShortNameChars(extension)
	if stem == "" {
		stem = "_"
	}
	return stem, extension
}

// foldShortNameChars replaces everything outside the DOS character set with
// an underscore and drops separators entirely.
func foldShortNameChars(s string) string {
	var builder strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == '.':
			// Skipped, not substituted.
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r < 0x80 && strings.ContainsRune(validShortNameChars, r):
			builder.WriteRune(r)
		default:
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

func clip(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

// hashName folds the original long name into 16 bits for the hashed stem
// form.
func hashName(name string) uint16 {
	h := fnv.New32a()
	h.Write([]byte(name))
	sum := h.Sum32()
	return uint16(sum>>16) ^ uint16(sum)
}
