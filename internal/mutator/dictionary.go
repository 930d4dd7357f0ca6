package mutator

// Dictionary holds the per-protocol token sets used by the dictionary
// stage: insertion or overwrite at a random offset with a token drawn
// from the set matching the configured protocol, plus the generic
// injection payload set that is always available regardless of
// protocol.

// Protocol names the closed set of protocol-aware variants. A sum type
// (rather than one mutator subclass per protocol) per the design note
// on dynamic dispatch over protocol parsers.
type Protocol int

const (
	ProtocolNone Protocol = iota
	ProtocolHTTP
	ProtocolDNS
	ProtocolSMTP
	ProtocolCustom
)

// ProtocolForName maps a config's protocol string to its Protocol
// value. An unrecognized name degrades to ProtocolNone rather than
// erroring, since protocol-aware mutation is an enhancement, not a
// required capability.
func ProtocolForName(name string) Protocol {
	switch name {
	case "http":
		return ProtocolHTTP
	case "dns":
		return ProtocolDNS
	case "smtp":
		return ProtocolSMTP
	case "custom":
		return ProtocolCustom
	default:
		return ProtocolNone
	}
}

var httpTokens = [][]byte{
	[]byte("GET"), []byte("POST"), []byte("PUT"), []byte("DELETE"), []byte("HEAD"),
	[]byte("OPTIONS"), []byte("PATCH"), []byte("TRACE"), []byte("CONNECT"),
	[]byte("HTTP/1.0"), []byte("HTTP/1.1"), []byte("HTTP/2.0"),
	[]byte("Content-Length"), []byte("Transfer-Encoding"), []byte("Host"),
	[]byte("Content-Type"), []byte("Authorization"), []byte("Cookie"),
	[]byte("\r\n"), []byte("chunked"),
}

// dnsTypeCodes are type codes packed big-endian as they appear on the
// wire (A, NS, CNAME, SOA, PTR, MX, TXT, AAAA, ANY).
var dnsTypeCodes = [][]byte{
	{0x00, 0x01}, {0x00, 0x02}, {0x00, 0x05}, {0x00, 0x06},
	{0x00, 0x0C}, {0x00, 0x0F}, {0x00, 0x10}, {0x00, 0x1C},
	{0x00, 0xFF},
}

// dnsCompressionPointer is the 0xC0 prefix marking a DNS name
// compression pointer.
var dnsCompressionPointer = []byte{0xC0, 0x0C}

var smtpTokens = [][]byte{
	[]byte("HELO"), []byte("EHLO"), []byte("MAIL FROM:"), []byte("RCPT TO:"),
	[]byte("DATA"), []byte("RSET"), []byte("VRFY"), []byte("QUIT"),
	[]byte("\r\n"), []byte("\r\n.\r\n"),
}

// genericPayloads are classic injection payloads (SQL, shell, format
// strings) that apply regardless of the configured protocol.
var genericPayloads = [][]byte{
	[]byte("' OR '1'='1"), []byte("'; DROP TABLE users; --"),
	[]byte("1' UNION SELECT NULL--"),
	[]byte("$(reboot)"), []byte("; cat /etc/passwd"), []byte("`id`"), []byte("| whoami"),
	[]byte("%n%n%n%n"), []byte("%s%s%s%s"), []byte("%x%x%x%x"),
	[]byte("../../../../etc/passwd"), []byte("..\\..\\..\\windows\\win.ini"),
	[]byte("<script>alert(1)</script>"),
	[]byte("\x00\x00\x00\x00"),
	[]byte("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"),
}

// Dictionary dispatches to the token set for the configured protocol,
// always also drawing from the generic injection set.
type Dictionary struct {
	proto  Protocol
	tokens [][]byte
}

// NewDictionary builds the combined token set for proto.
func NewDictionary(proto Protocol) *Dictionary {
	d := &Dictionary{proto: proto}
	switch proto {
	case ProtocolHTTP:
		d.tokens = append(d.tokens, httpTokens...)
	case ProtocolDNS:
		d.tokens = append(d.tokens, dnsTypeCodes...)
		d.tokens = append(d.tokens, dnsCompressionPointer)
	case ProtocolSMTP:
		d.tokens = append(d.tokens, smtpTokens...)
	}
	d.tokens = append(d.tokens, genericPayloads...)
	return d
}

// Mutate inserts or overwrites at a random offset with a randomly
// chosen token.
func (d *Dictionary) Mutate(input []byte) []byte {
	token := d.tokens[secureInt(len(d.tokens))]
	if len(input) == 0 {
		return append([]byte(nil), token...)
	}

	pos := secureInt(len(input) + 1)
	if secureBool() {
		// insert
		out := make([]byte, 0, len(input)+len(token))
		out = append(out, input[:pos]...)
		out = append(out, token...)
		out = append(out, input[pos:]...)
		return out
	}

	// overwrite, clamped to input length
	out := append([]byte(nil), input...)
	end := pos + len(token)
	if end > len(out) {
		end = len(out)
	}
	copy(out[pos:end], token)
	return out
}
