// Package canon implements SPIRAL's content-addressable canonicalisation:
// a deterministic JSON rendering (subset of RFC 8785's JCS) used to
// compute a stable digest for a parsed document, independent of the
// host's field order, number spelling, or any top-level fields the
// document format doesn't recognise. No example repo ships a
// canonical-JSON encoder, so this is new code grounded directly in the
// specification's byte-for-byte rules rather than adapted from the
// teacher; encoding/json supplies the generic decode step (any host
// JSON in, `any` out) that the canonicaliser then walks by hand.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Canonicalize renders v (the result of json.Unmarshal into `any`, or
// an equivalent tree of map[string]any/[]any/string/float64/bool/nil)
// as canonical JSON bytes: object keys sorted by ascending UTF-16 code
// unit sequence, numbers rendered by an ECMAScript-compatible
// ToString, -0 folded to 0, and no insignificant whitespace.
func Canonicalize(v any) ([]byte, error) {
	var b strings.Builder
	if err := encode(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// Digest returns the lowercase hex SHA-256 of v's canonical rendering —
// the content address used to key pkg/canon/cache entries.
func Digest(v any) (string, error) {
	raw, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// StripUnknownTopLevel returns a copy of m containing only the keys
// present in allowed, so a host's extra bookkeeping fields (request
// ids, comments, timestamps) never perturb the digest.
func StripUnknownTopLevel(m map[string]any, allowed map[string]bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}

func encode(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		s, err := formatNumber(t)
		if err != nil {
			return err
		}
		b.WriteString(s)
	case string:
		encodeString(b, t)
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := encode(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return utf16Less(keys[i], keys[j]) })
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			encodeString(b, k)
			b.WriteByte(':')
			if err := encode(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("canon: unsupported value type %T", v)
	}
	return nil
}

// utf16Less orders a, b by ascending UTF-16 code unit sequence, per
// RFC 8785 §3.2.3 — not Go's default byte-wise string comparison,
// which would instead sort by UTF-8 byte value and disagree with it for
// any key containing a character outside the Basic Multilingual Plane.
func utf16Less(a, b string) bool {
	au, bu := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	n := len(au)
	if len(bu) < n {
		n = len(bu)
	}
	for i := 0; i < n; i++ {
		if au[i] != bu[i] {
			return au[i] < bu[i]
		}
	}
	return len(au) < len(bu)
}

func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

// formatNumber renders f the way ECMAScript's Number::toString does for
// the finite, non-huge range SPIRAL's Int/Float values occupy: shortest
// round-tripping decimal, no leading "+", no insignificant trailing
// zeros, and -0 folded to "0" per the specification's hashing rule.
// Non-finite floats have no canonical JSON rendering, so they are
// rejected rather than silently coerced to "null".
func formatNumber(f float64) (string, error) {
	if f == 0 {
		return "0", nil
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("canon: cannot canonicalise non-finite number %v", f)
	}
	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	return mantissa + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0"), nil
}
