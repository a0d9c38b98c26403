package deltakit

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Checksum computes a deterministic, non-cryptographic fingerprint of a
// record's content. Equal logical content always yields equal checksums
// regardless of key insertion order: encoding/json serializes map keys in
// lexicographic order at every nesting level, so the serialization is
// canonical. The digest is a 32-bit rolling hash rendered as base-36.
//
// This is an integrity/equality probe for conflict detection, not a
// cryptographic hash.
func Checksum(data RecordData) string {
	if data == nil {
		data = RecordData{}
	}
	return checksumBytes(canonicalJSON(data))
}

func checksumBytes(canonical []byte) string {
	var h int32
	for _, b := range canonical {
		h = (h << 5) - h + int32(b)
	}
	return strconv.FormatUint(uint64(uint32(h)), 36)
}

// canonicalJSON serializes v with sorted map keys. Values that cannot be
// marshaled (a programmer error under the RecordData contract) degrade to
// an empty object rather than poisoning the checksum pipeline.
func canonicalJSON(v any) []byte {
	out, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return out
}

// canonicalEqual reports whether two values have identical canonical
// serializations. This is the deep equality used for object-valued fields:
// two maps with the same entries compare equal regardless of construction
// order.
func canonicalEqual(a, b any) bool {
	return bytes.Equal(canonicalJSON(a), canonicalJSON(b))
}

// serializedLen is the canonical serialized length of v, used to size
// changes for priority classification and batch budgeting.
func serializedLen(v any) int {
	return len(canonicalJSON(v))
}
