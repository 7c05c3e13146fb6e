// Package wildcard implements SMB1 mask matching and the destination-name
// substitution used by wildcard RENAME and COPY.
//
// Masks understand '*' and '?' plus the DOS forms sent by NT-era clients:
//
//	<  DOS_STAR: any run of characters up to the name's final '.'
//	>  DOS_QM:   any single character, or nothing at a '.' or end of name
//	"  DOS_DOT:  a '.', or nothing at end of name
package wildcard

import "strings"

// IsMatchAll reports whether mask selects every entry. Besides "*" this
// covers the legacy 8.3 forms older clients send.
func IsMatchAll(mask string) bool {
	switch mask {
	case "", "*", "*.*", "????????.???", "<.*", "*.<", "<.<":
		return true
	}
	return false
}

// Match reports whether name matches mask.
func Match(mask, name string, caseSensitive bool) bool {
	if IsMatchAll(mask) {
		return true
	}
	if !caseSensitive {
		mask = strings.ToUpper(mask)
		name = strings.ToUpper(name)
	}
	p := []rune(mask)
	n := []rune(name)
	return match(p, n, lastDot(n))
}

func lastDot(n []rune) int {
	for i := len(n) - 1; i >= 0; i-- {
		if n[i] == '.' {
			return i
		}
	}
	return -1
}

// match is a backtracking matcher; masks are short so the recursion depth
// is bounded by the number of star forms.
func match(p, n []rune, dot int) bool {
	// dot is the index of the final '.' in the full name, rebased as n
	// shrinks; it goes negative once the final dot has been consumed.
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 0 && p[0] == '*' {
				p = p[1:]
			}
			if len(p) == 0 {
				return true
			}
			for i := 0; i <= len(n); i++ {
				if match(p, n[i:], dot-i) {
					return true
				}
			}
			return false

		case '<':
			p = p[1:]
			for i := 0; i <= len(n); i++ {
				if match(p, n[i:], dot-i) {
					return true
				}
				// The run may not swallow the final dot.
				if i == dot {
					return false
				}
			}
			return false

		case '>':
			p = p[1:]
			if len(n) == 0 || n[0] == '.' {
				continue
			}
			n = n[1:]
			dot--

		case '"':
			p = p[1:]
			if len(n) == 0 {
				continue
			}
			if n[0] != '.' {
				return false
			}
			n = n[1:]
			dot--

		case '?':
			if len(n) == 0 {
				return false
			}
			p, n = p[1:], n[1:]
			dot--

		default:
			if len(n) == 0 || n[0] != p[0] {
				return false
			}
			p, n = p[1:], n[1:]
			dot--
		}
	}
	return len(n) == 0
}

// Substitute computes the destination name for src under a wildcard mask.
//
// Both names are split at their last '.' into a root and an extension and
// each half is resolved independently: '?' copies the source character at
// the same position, '*' copies the rest of the source half and ends the
// half, and any other character is taken from the mask. A mask without a
// '.' is resolved against the whole source name.
func Substitute(src, mask string) string {
	if !strings.Contains(mask, ".") {
		return resolve([]rune(src), []rune(mask))
	}

	srcRoot, srcExt := splitExt(src)
	maskRoot, maskExt := splitExt(mask)

	root := resolve([]rune(srcRoot), []rune(maskRoot))
	ext := resolve([]rune(srcExt), []rune(maskExt))
	if ext == "" {
		return root
	}
	return root + "." + ext
}

func splitExt(name string) (root, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func resolve(src, mask []rune) string {
	var b strings.Builder
	i := 0
	for _, m := range mask {
		switch m {
		case '?':
			if i >= len(src) {
				return b.String()
			}
			b.WriteRune(src[i])
		case '*':
			if i < len(src) {
				b.WriteString(string(src[i:]))
			}
			return b.String()
		default:
			b.WriteRune(m)
		}
		i++
	}
	return b.String()
}

// EqualFold compares two names the way a case-insensitive share does.
func EqualFold(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}
