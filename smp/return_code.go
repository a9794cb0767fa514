package smp

import "fmt"

// ReturnCode is the SMP result code reported by a device.
type ReturnCode uint16

const (
	RCOK                ReturnCode = 0
	RCUnknown           ReturnCode = 1
	RCNoMemory          ReturnCode = 2
	RCInvalidValue      ReturnCode = 3
	RCTimeout           ReturnCode = 4
	RCNoEntry           ReturnCode = 5
	RCBadState          ReturnCode = 6
	RCResponseTooLong   ReturnCode = 7
	RCUnsupported       ReturnCode = 8
	RCCorruptPayload    ReturnCode = 9
	RCBusy              ReturnCode = 10
	RCAccessDenied      ReturnCode = 11
	RCUnsupportedTooOld ReturnCode = 12
	RCUnsupportedTooNew ReturnCode = 13
	RCUserDefined       ReturnCode = 256
)

var returnCodeNames = map[ReturnCode]string{
	RCOK:                "ok",
	RCUnknown:           "unknown error",
	RCNoMemory:          "out of memory",
	RCInvalidValue:      "invalid value",
	RCTimeout:           "timeout",
	RCNoEntry:           "no entry",
	RCBadState:          "bad state",
	RCResponseTooLong:   "response too long",
	RCUnsupported:       "unsupported",
	RCCorruptPayload:    "corrupt payload",
	RCBusy:              "busy",
	RCAccessDenied:      "access denied",
	RCUnsupportedTooOld: "protocol version too old",
	RCUnsupportedTooNew: "protocol version too new",
	RCUserDefined:       "user defined error",
}

func (rc ReturnCode) String() string {
	if name, ok := returnCodeNames[rc]; ok {
		return name
	}

	return fmt.Sprintf("rc(%d)", uint16(rc))
}

// IsSupported reports whether rc doesn't flag the command as unsupported.
func (rc ReturnCode) IsSupported() bool {
	switch rc {
	case RCUnsupported, RCUnsupportedTooOld, RCUnsupportedTooNew:
		return false
	default:
		return true
	}
}

// ReturnCodeError is an SMPv1 style error, a non-zero "rc" in the response.
type ReturnCodeError struct {
	RC ReturnCode
}

func (e *ReturnCodeError) Error() string {
	return fmt.Sprintf("smp: device returned rc=%d (%s)", uint16(e.RC), e.RC)
}

// GroupError is an SMPv2 style error, an "err" map scoped to a command group.
type GroupError struct {
	Group Group
	RC    uint16
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("smp: group %s returned rc=%d", e.Group, e.RC)
}
