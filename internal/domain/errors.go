package domain

import "fmt"

// PositionErrorCode classifies a failed request or watch update.
type PositionErrorCode uint16

const (
	PermissionDenied    PositionErrorCode = 1
	PositionUnavailable PositionErrorCode = 2
	Timeout             PositionErrorCode = 3
	// FailedToDeserialize is synthesized when a host payload cannot be decoded.
	FailedToDeserialize PositionErrorCode = 4
	// NoBrowserSupport is synthesized when no host capability is available.
	NoBrowserSupport PositionErrorCode = 5
)

func (c PositionErrorCode) String() string {
	switch c {
	case PermissionDenied:
		return "permission_denied"
	case PositionUnavailable:
		return "position_unavailable"
	case Timeout:
		return "timeout"
	case FailedToDeserialize:
		return "failed_to_deserialize"
	case NoBrowserSupport:
		return "no_browser_support"
	default:
		return fmt.Sprintf("position_error_code(%d)", uint16(c))
	}
}

// PositionError is delivered to error callbacks.
type PositionError struct {
	Code    PositionErrorCode
	Message string
}

func (e PositionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MapCode maps a host error code to its PositionErrorCode. Hosts only report
// 1, 2 and 3; any other value is a broken host and MapCode panics.
func MapCode(n uint16) PositionErrorCode {
	switch n {
	case 1:
		return PermissionDenied
	case 2:
		return PositionUnavailable
	case 3:
		return Timeout
	default:
		panic(fmt.Sprintf("geolocation host contract violation: unknown position error code %d", n))
	}
}

// isHostCode reports whether n is a code MapCode accepts.
func isHostCode(n int) bool {
	return n >= 1 && n <= 3
}
