package scopus

import (
	"bytes"
	"encoding/xml"
	"regexp"

	"golang.org/x/net/html/charset"
)

// defaultNamespacePattern matches an anonymous default namespace declaration.
// The colon in qualified declarations (xmlns:dc="...") keeps them from
// matching.
var defaultNamespacePattern = regexp.MustCompile(`\s+xmlns\s*=\s*"[^"]*"`)

// StripDefaultNamespace removes exactly one anonymous default namespace
// declaration from the raw document. The feed declares its qualified
// namespaces (dc:, prism:, opensearch:) alongside an anonymous default one
// that would otherwise shadow unqualified child lookups; only the anonymous
// declaration goes. Documents without one pass through unchanged.
func StripDefaultNamespace(raw []byte) []byte {
	loc := defaultNamespacePattern.FindIndex(raw)
	if loc == nil {
		return raw
	}
	out := make([]byte, 0, len(raw)-(loc[1]-loc[0]))
	out = append(out, raw[:loc[0]]...)
	out = append(out, raw[loc[1]:]...)
	return out
}

// DecodeDocument normalizes raw and unmarshals it into v, honoring the byte
// encoding the document declares. Callers wrap the returned error with the
// page offset or author id that produced the document.
func DecodeDocument(raw []byte, v any) error {
	dec := xml.NewDecoder(bytes.NewReader(StripDefaultNamespace(raw)))
	dec.CharsetReader = charset.NewReaderLabel
	return dec.Decode(v)
}
