package mutator

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// Protocol.MutateField is the protocol-aware field mutation stage: when
// a parser is configured, project the input to a specific field and
// invoke a type-specific mutator. Length/checksum fields are never
// auto-fixed: desynchronizing them from the payload is a target of this
// stage, not a bug to avoid.
func (p Protocol) MutateField(input []byte) []byte {
	switch p {
	case ProtocolHTTP:
		return mutateHTTPField(input)
	case ProtocolDNS:
		return mutateDNSField(input)
	case ProtocolSMTP:
		return mutateSMTPField(input)
	case ProtocolCustom:
		return mutateCustomGrammarField(input)
	default:
		return input
	}
}

// mutateHTTPField targets the request line (method/path/version) or the
// first header's value, the two string-typed fields an HTTP message
// exposes to this narrow interface.
func mutateHTTPField(input []byte) []byte {
	lineEnd := indexOf(input, '\n')
	if lineEnd < 0 {
		return lengthBoundStringCorruption(input)
	}
	start, end := 0, lineEnd
	if colon := indexOf(input[lineEnd:], ':'); colon >= 0 && secureBool() {
		start = lineEnd + colon + 1
		end = len(input)
		if nl := indexOf(input[start:], '\n'); nl >= 0 {
			end = start + nl
		}
	}
	mutated := lengthBoundStringCorruption(input[start:end])

	out := make([]byte, 0, len(input)-(end-start)+len(mutated))
	out = append(out, input[:start]...)
	out = append(out, mutated...)
	out = append(out, input[end:]...)
	return out
}

// mutateDNSField either overwrites the last two bytes (where a minimal
// question record ends in its qtype) with a known DNS type code, or
// overwrites one random byte, which may land on a label length prefix.
// The message is not parsed.
func mutateDNSField(input []byte) []byte {
	if len(input) < 4 {
		return input
	}
	out := append([]byte(nil), input...)
	if secureBool() {
		// qtype: numeric field, interesting-value driven.
		code := dnsTypeCodes[secureInt(len(dnsTypeCodes))]
		copy(out[len(out)-2:], code)
		return out
	}
	// Overwrite one random byte without touching the rest; when it hits
	// a label length prefix, the label desynchronizes from its payload.
	pos := secureInt(len(out))
	out[pos] = byte(secureInt(256))
	return out
}

func mutateSMTPField(input []byte) []byte {
	lineEnd := indexOf(input, '\n')
	if lineEnd < 0 {
		return lengthBoundStringCorruption(input)
	}
	command := input[:lineEnd]
	rest := input[lineEnd:]
	mutated := lengthBoundStringCorruption(command)

	out := make([]byte, 0, len(mutated)+len(rest))
	out = append(out, mutated...)
	out = append(out, rest...)
	return out
}

// mutateCustomGrammarField uses gjson to locate a field inside a
// JSON-shaped custom-grammar input without a full codec, per the
// narrow field-mutation interface this engine consumes protocol
// parsers through. Numeric leaves are replaced with an interesting
// 32-bit value; string and other leaves get length-bound corruption. A
// length-looking key ("length", "len", "size") is eligible for
// intentional desync: it is overwritten with an unrelated integer
// rather than kept consistent with payload size.
func mutateCustomGrammarField(input []byte) []byte {
	if !gjson.ValidBytes(input) {
		return lengthBoundStringCorruption(input)
	}
	parsed := gjson.ParseBytes(input)
	var paths []string
	parsed.ForEach(func(key, value gjson.Result) bool {
		paths = append(paths, key.String())
		return true
	})
	if len(paths) == 0 {
		return input
	}
	key := paths[secureInt(len(paths))]
	field := parsed.Get(key)

	var replacement string
	switch {
	case isLengthKey(key):
		replacement = strconv.Itoa(desyncedLength(len(input)))
	case field.Type == gjson.Number:
		replacement = strconv.FormatInt(int64(interestingNumeric()), 10)
	default:
		corrupted := lengthBoundStringCorruption([]byte(field.String()))
		replacement = string(corrupted)
	}

	// sjson would be the natural setter; without it, a minimal
	// string-level overwrite keeps this a narrow field-mutation
	// interface rather than a full codec.
	return replaceJSONStringValue(input, key, replacement)
}

func isLengthKey(key string) bool {
	switch key {
	case "length", "len", "size", "Content-Length":
		return true
	default:
		return false
	}
}

func desyncedLength(payloadLen int) int {
	delta := secureInt(200) - 100
	v := payloadLen + delta
	if v < 0 {
		v = 0
	}
	return v
}

func interestingNumeric() int {
	return interesting32[secureInt(len(interesting32))]
}

// replaceJSONStringValue performs a textual find of `"key":` and
// overwrites the following value up to the next comma/brace. This is
// deliberately not a JSON codec: it is the minimal byte-level surgery
// the field-mutation interface is scoped to.
func replaceJSONStringValue(input []byte, key, replacement string) []byte {
	marker := []byte("\"" + key + "\"")
	idx := indexOfSlice(input, marker)
	if idx < 0 {
		return input
	}
	colon := indexOfFrom(input, ':', idx)
	if colon < 0 {
		return input
	}
	valStart := colon + 1
	for valStart < len(input) && (input[valStart] == ' ' || input[valStart] == '\t') {
		valStart++
	}
	valEnd := valStart
	for valEnd < len(input) && input[valEnd] != ',' && input[valEnd] != '}' && input[valEnd] != '\n' {
		valEnd++
	}

	out := make([]byte, 0, len(input)+len(replacement))
	out = append(out, input[:valStart]...)
	out = append(out, []byte(replacement)...)
	out = append(out, input[valEnd:]...)
	return out
}

func indexOf(buf []byte, b byte) int {
	for i, c := range buf {
		if c == b {
			return i
		}
	}
	return -1
}

func indexOfFrom(buf []byte, b byte, from int) int {
	for i := from; i < len(buf); i++ {
		if buf[i] == b {
			return i
		}
	}
	return -1
}

func indexOfSlice(buf, sub []byte) int {
	if len(sub) == 0 || len(sub) > len(buf) {
		return -1
	}
	for i := 0; i+len(sub) <= len(buf); i++ {
		match := true
		for j := range sub {
			if buf[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// lengthBoundStringCorruption applies a length-bound corruption to a
// string-typed field: truncate, pad, or overwrite a byte run, staying
// within a small multiple of the original length.
func lengthBoundStringCorruption(field []byte) []byte {
	if len(field) == 0 {
		return secureBytes(1 + secureInt(16))
	}
	switch secureInt(3) {
	case 0:
		// truncate
		cut := 1 + secureInt(len(field))
		return append([]byte(nil), field[:cut]...)
	case 1:
		// pad
		pad := secureBytes(1 + secureInt(len(field)))
		return append(append([]byte(nil), field...), pad...)
	default:
		out := append([]byte(nil), field...)
		overwriteRandomChunk(out)
		return out
	}
}
