package smp

import (
	"fmt"
	"time"
)

const (
	// DefaultTimeout is the time allowed for a request to be answered when the caller
	// doesn't specify one.
	DefaultTimeout = 40 * time.Second
	// FastTimeout is the typical time for a command to be sent, executed and answered.
	FastTimeout = 5 * time.Second
)

const (
	// MinMTU is the smallest MTU accepted by Manager.SetMTU.
	MinMTU = 73
	// MaxMTU is the largest MTU accepted by Manager.SetMTU.
	MaxMTU = 1024
)

// Version is the SMP protocol version carried in the header.
type Version uint8

const (
	// SMPv1 is the legacy protocol, errors are reported with a bare "rc".
	SMPv1 Version = 0
	// SMPv2 reports errors as a group scoped "err" map.
	SMPv2 Version = 1
)

func (v Version) String() string {
	switch v {
	case SMPv1:
		return "SMPv1"
	case SMPv2:
		return "SMPv2"
	default:
		return fmt.Sprintf("SMPv?(%d)", uint8(v))
	}
}

// Op is the SMP operation code.
type Op uint8

const (
	OpRead          Op = 0
	OpReadResponse  Op = 1
	OpWrite         Op = 2
	OpWriteResponse Op = 3
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpReadResponse:
		return "readResponse"
	case OpWrite:
		return "write"
	case OpWriteResponse:
		return "writeResponse"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// IsResponse reports whether o is one of the response operations.
func (o Op) IsResponse() bool {
	return o == OpReadResponse || o == OpWriteResponse
}

// Group is the SMP command group ID.
type Group uint16

const (
	GroupOS       Group = 0
	GroupImage    Group = 1
	GroupStats    Group = 2
	GroupSettings Group = 3
	GroupLogs     Group = 4
	GroupCrash    Group = 5
	GroupSplit    Group = 6
	GroupRun      Group = 7
	GroupFS       Group = 8
	GroupShell    Group = 9
	GroupBasic    Group = 63
	GroupPerUser  Group = 64
	GroupSuit     Group = 66
)

var groupNames = map[Group]string{
	GroupOS:       "os",
	GroupImage:    "image",
	GroupStats:    "stats",
	GroupSettings: "settings",
	GroupLogs:     "logs",
	GroupCrash:    "crash",
	GroupSplit:    "split",
	GroupRun:      "run",
	GroupFS:       "fs",
	GroupShell:    "shell",
	GroupBasic:    "basic",
	GroupPerUser:  "perUser",
	GroupSuit:     "suit",
}

func (g Group) String() string {
	if name, ok := groupNames[g]; ok {
		return name
	}

	return fmt.Sprintf("group(%d)", uint16(g))
}

// Scheme identifies how a transport frames SMP packets.
type Scheme uint8

const (
	// SchemeBLE is SMP over a GATT characteristic, header prepended.
	SchemeBLE Scheme = iota
	// SchemeCoapBLE is CoAP over BLE, header embedded in the payload.
	SchemeCoapBLE
	// SchemeCoapUDP is CoAP over UDP, header embedded in the payload.
	SchemeCoapUDP
	// SchemeUDP is SMP over plain UDP datagrams, header prepended.
	SchemeUDP
)

func (s Scheme) String() string {
	switch s {
	case SchemeBLE:
		return "ble"
	case SchemeCoapBLE:
		return "coap-ble"
	case SchemeCoapUDP:
		return "coap-udp"
	case SchemeUDP:
		return "udp"
	default:
		return fmt.Sprintf("scheme(%d)", uint8(s))
	}
}

// IsCoap reports whether s embeds the header in the CBOR payload.
func (s Scheme) IsCoap() bool {
	return s == SchemeCoapBLE || s == SchemeCoapUDP
}

// IsBLE reports whether s runs over a BLE link.
func (s Scheme) IsBLE() bool {
	return s == SchemeBLE || s == SchemeCoapBLE
}

// DefaultMTU returns the MTU a transport of scheme s should start with.
func DefaultMTU(s Scheme) int {
	if s.IsBLE() {
		return 524
	}

	return MaxMTU
}
