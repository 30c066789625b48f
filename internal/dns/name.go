package dns

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

const (
	maxNameLen  = 255
	maxLabelLen = 63

	// pointerMask selects the two high bits of a length octet; 11 marks a
	// compression pointer. See RFC 1035, 4.1.4.
	pointerMask   = 0xC0
	pointerOffset = 0x3FFF
)

// readName decodes a possibly compressed domain name starting at off.
// It returns the dotted name and the offset just past the name as it appears
// at off (after the first pointer when the name is compressed).
func readName(msg []byte, off int) (string, int, error) {
	var b strings.Builder
	end := -1
	pos := off
	visited := map[int]struct{}{}

	for {
		if pos >= len(msg) {
			return "", 0, formatErr("QNAME is out of bound")
		}
		l := int(msg[pos])

		switch {
		case l == 0:
			if end < 0 {
				end = pos + 1
			}
			return b.String(), end, nil

		case l&pointerMask == pointerMask:
			if pos+1 >= len(msg) {
				return "", 0, formatErr("QNAME is malformed")
			}
			ptr := int(binary.BigEndian.Uint16(msg[pos:]) & pointerOffset)
			if ptr >= len(msg) {
				return "", 0, formatErr("offset is out of bounds")
			}
			if _, seen := visited[ptr]; seen {
				return "", 0, formatErr("found recursive pointer")
			}
			visited[ptr] = struct{}{}
			if end < 0 {
				end = pos + 2
			}
			pos = ptr

		case l&pointerMask != 0:
			return "", 0, formatErr("unsupported label type 0x%02x", l&pointerMask)

		default:
			pos++
			// the byte after the label must exist: either the next length or the terminator
			if pos+l >= len(msg) {
				return "", 0, formatErr("QNAME is out of bound")
			}
			label := msg[pos : pos+l]
			if !utf8.Valid(label) {
				return "", 0, formatErr("QNAME contains invalid characters")
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.Write(label)
			if b.Len() > maxNameLen {
				return "", 0, formatErr("name exceeds %d octets", maxNameLen)
			}
			pos += l
		}
	}
}

// appendName writes name as uncompressed length-prefixed labels terminated by
// the null label of the root.
func appendName(b []byte, name string) ([]byte, error) {
	name = strings.TrimSuffix(name, ".")
	if name == "" {
		return append(b, 0), nil
	}
	if len(name) > maxNameLen {
		return nil, fmt.Errorf("%w: name exceeds %d octets", ErrInvalidHostname, maxNameLen)
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > maxLabelLen {
			return nil, fmt.Errorf("%w: bad label in %q", ErrInvalidHostname, name)
		}
		b = append(b, byte(len(label)))
		b = append(b, label...)
	}
	return append(b, 0), nil
}

// ValidateHostname checks that name is eligible for a query. A single
// trailing dot (FQDN form) is accepted.
func ValidateHostname(name string) error {
	name = strings.TrimSuffix(name, ".")
	if name == "" || len(name) > maxNameLen {
		return ErrInvalidHostname
	}
	for _, label := range strings.Split(name, ".") {
		if label == "" || len(label) > maxLabelLen {
			return ErrInvalidHostname
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return ErrInvalidHostname
		}
		for i := 0; i < len(label); i++ {
			if !isHostnameByte(label[i]) {
				return ErrInvalidHostname
			}
		}
	}
	return nil
}

// NormalizeHostname converts internationalised names to their ASCII form,
// lower-cases, strips the trailing dot and validates the result.
func NormalizeHostname(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return "", ErrInvalidHostname
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHostname, err)
	}
	ascii = strings.ToLower(ascii)
	if err := ValidateHostname(ascii); err != nil {
		return "", err
	}
	return ascii, nil
}

func isHostnameByte(c byte) bool {
	return c == '-' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
