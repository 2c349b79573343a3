package arbiter

import (
	"encoding/base64"
	"strings"

	"github.com/dchest/siphash"
)

// nameMax mirrors the traditional filesystem NAME_MAX; the escaped form of
// a symlink path must fit under it to be usable as a single directory
// component.
const nameMax = 255

// escapeHashKey is the fixed 128-bit SipHash key used to disambiguate
// escaped names that would otherwise collide once truncated to fit
// [nameMax]. Fixed, not random, so that [pathFor] is deterministic across
// restarts — a requirement for the arbiter to find its own stack
// directories again after a crash.
var escapeHashKey = [16]byte{
	0x64, 0x65, 0x76, 0x6e, 0x65, 0x74, 0x64, 0x2d,
	0x65, 0x73, 0x63, 0x61, 0x70, 0x65, 0x2d, 0x6b,
}

// escapeSymlink implements the stack-directory naming scheme of §4.4:
// strip the "/dev/" prefix, percent-escape '/' and '\', and, if the result
// would overflow nameMax, suffix it with 11 base64url characters of a
// SipHash-2-4 digest of the un-truncated escaped name for uniqueness.
func escapeSymlink(symlink string) (name string) {
	symlink = strings.TrimPrefix(symlink, "/dev/")

	var sb strings.Builder
	for i := 0; i < len(symlink); i++ {
		switch c := symlink[i]; c {
		case '/':
			sb.WriteString(`\x2f`)
		case '\\':
			sb.WriteString(`\x5c`)
		default:
			sb.WriteByte(c)
		}
	}

	escaped := sb.String()
	if len(escaped) <= nameMax {
		return escaped
	}

	digest := siphash.Hash(leUint64(escapeHashKey[:8]), leUint64(escapeHashKey[8:]), []byte(escaped))

	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(digest >> (8 * i))
	}

	suffix := base64.RawURLEncoding.EncodeToString(buf[:])[:11]

	return escaped[:nameMax-len(suffix)-1] + "_" + suffix
}

// leUint64 decodes an 8-byte slice as a little-endian uint64, matching the
// key-halves signature [siphash.Hash] expects.
func leUint64(b []byte) (v uint64) {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
