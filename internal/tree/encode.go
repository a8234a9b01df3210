package tree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
)

// Compact returns the deterministic single-line JSON encoding of v: map
// keys sorted, no insignificant whitespace, non-ASCII text kept as UTF-8.
func Compact(v Value) []byte {
	var buf bytes.Buffer
	writeValue(&buf, v)

	return buf.Bytes()
}

// Pretty returns the deterministic encoding indented by two spaces with
// a trailing newline. This is the on-disk form of instance files.
func Pretty(v Value) []byte {
	var out bytes.Buffer
	// Compact output is always valid JSON, Indent cannot fail on it.
	_ = json.Indent(&out, Compact(v), "", "  ")
	out.WriteByte('\n')

	return out.Bytes()
}

// Fingerprint is the hex SHA-256 of the compact encoding of n.
func Fingerprint(n Node) string {
	sum := sha256.Sum256(Compact(n.Value()))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether a and b encode identically.
func Equal(a, b Node) bool {
	return bytes.Equal(Compact(a.Value()), Compact(b.Value()))
}

func writeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindInt:
		buf.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		writeFloat(buf, v.f)
	case KindString:
		writeString(buf, v.s)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}

			writeValue(buf, item)
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, k := range sortedKeys(v.m) {
			if i > 0 {
				buf.WriteByte(',')
			}

			writeString(buf, k)
			buf.WriteByte(':')
			writeValue(buf, v.m[k])
		}
		buf.WriteByte('}')
	}
}

func writeFloat(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		buf.WriteString("null")
		return
	}

	b, _ := json.Marshal(f)
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	var tmp bytes.Buffer

	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)

	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
}

// MarshalJSON encodes v deterministically.
func (v Value) MarshalJSON() ([]byte, error) {
	return Compact(v), nil
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}

	*v = decoded

	return nil
}
