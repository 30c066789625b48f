package history

import (
	"errors"

	"tiny-resolver/internal/dns"
)

// StatusFromError classifies the outcome of a resolution. answers is the
// number of answer records returned on success.
func StatusFromError(err error, answers int) (Status, string) {
	if err == nil {
		if answers == 0 {
			return StatusNoData, dns.RCodeSuccess.String()
		}
		return StatusOK, dns.RCodeSuccess.String()
	}

	var se *dns.ServerError
	if errors.As(err, &se) {
		switch se.RCode {
		case dns.RCodeNXDomain:
			return StatusNXDomain, se.RCode.String()
		case dns.RCodeServerFailure:
			return StatusServFail, se.RCode.String()
		case dns.RCodeRefused:
			return StatusRefused, se.RCode.String()
		default:
			return StatusError, se.RCode.String()
		}
	}
	return StatusError, ""
}
