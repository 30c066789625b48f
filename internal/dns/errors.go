package dns

import (
	"errors"
	"fmt"
)

// ErrInvalidHostname is returned when a name fails hostname validation.
var ErrInvalidHostname = errors.New("dns: invalid hostname")

// RCode is the 4-bit response code carried in the header flags.
// See RFC 1035, 4.1.1.
type RCode uint16

const (
	RCodeSuccess        RCode = 0
	RCodeFormatError    RCode = 1
	RCodeServerFailure  RCode = 2
	RCodeNXDomain       RCode = 3
	RCodeNotImplemented RCode = 4
	RCodeRefused        RCode = 5
	RCodeUnknown        RCode = 6
)

// RCodeFromFlags extracts the rcode. Codes above Refused collapse to RCodeUnknown.
func RCodeFromFlags(flags uint16) RCode {
	rc := RCode(flags & 0x000F)
	if rc > RCodeRefused {
		return RCodeUnknown
	}
	return rc
}

func (r RCode) String() string {
	switch r {
	case RCodeSuccess:
		return "NOERROR"
	case RCodeFormatError:
		return "FORMERR"
	case RCodeServerFailure:
		return "SERVFAIL"
	case RCodeNXDomain:
		return "NXDOMAIN"
	case RCodeNotImplemented:
		return "NOTIMP"
	case RCodeRefused:
		return "REFUSED"
	default:
		return "UNKNOWN"
	}
}

// ServerError reports a non-zero rcode from a name server.
type ServerError struct {
	RCode RCode
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("dns: name server returned %s", e.RCode)
}

// IsNXDomain reports whether err carries an NXDOMAIN rcode.
func IsNXDomain(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && se.RCode == RCodeNXDomain
}

// FormatError reports malformed wire data.
type FormatError struct {
	Msg string
}

func (e *FormatError) Error() string { return "dns: " + e.Msg }

func formatErr(format string, args ...any) error {
	return &FormatError{Msg: fmt.Sprintf(format, args...)}
}
