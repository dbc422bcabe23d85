package trial

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON of a trial Config for hashing.
// This is the ONLY serialization used for content-addressed identity of a
// specification.
//
// Differences from standard json.Marshal:
//  1. Object keys sorted bytewise
//  2. Strings are NFC normalized
//  3. Floats use the shortest round-trip representation
//  4. Absent optional fields are omitted entirely
func MarshalCanonical(cfg Config) ([]byte, error) {
	// Round-trip through encoding/json to honor the struct's omitempty
	// tags, then re-emit deterministically.
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns the hex SHA-256 of the canonical JSON form of cfg. A Config
// that fails to marshal hashes to the empty string; such configs never pass
// validation, so the hash is unreachable from a valid Spec.
func Hash(cfg Config) string {
	b, err := MarshalCanonical(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(norm.NFC.String(val))
		if err != nil {
			return err
		}
		buf.Write(b)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			// Shortest representation that round-trips, so 0.50 and 0.5
			// hash identically.
			buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		} else {
			buf.WriteString(val.String())
		}
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(norm.NFC.String(k))
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}
