package smp

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// HeaderKey is the CBOR map key carrying the SMP header in CoAP schemes.
const HeaderKey = "_h"

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return dm
}

// Marshal encodes v as CBOR with the encoding options used for SMP payloads.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes the CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// BuildPacket encodes an SMP request.
//
// payload is a CBOR encodable map or struct; nil encodes an empty map. Standard schemes
// prepend the header to the payload. CoAP schemes add the header to the payload map under
// HeaderKey, unless the payload already carries one.
func BuildPacket(scheme Scheme, version Version, op Op, flags uint8, group Group, seq uint8, commandID uint8, payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}

	body, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("smp: encode payload: %w", err)
	}

	hdr := Header{
		Version:   version,
		Op:        op,
		Flags:     flags,
		Group:     group,
		Seq:       seq,
		CommandID: commandID,
	}

	if !scheme.IsCoap() {
		if len(body) > math.MaxUint16 {
			return nil, fmt.Errorf("smp: payload of %d bytes exceeds header length field", len(body))
		}
		hdr.Length = uint16(len(body))

		return append(hdr.AppendTo(make([]byte, 0, HeaderSize+len(body))), body...), nil
	}

	fields := map[string]cbor.RawMessage{}
	if err := decMode.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("smp: CoAP payload must be a map: %w", err)
	}
	if _, ok := fields[HeaderKey]; ok {
		return body, nil
	}

	rest, err := encMode.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("smp: encode payload: %w", err)
	}
	hdr.Length = uint16(len(rest))

	rawHdr, err := encMode.Marshal(hdr.Bytes())
	if err != nil {
		return nil, fmt.Errorf("smp: encode header: %w", err)
	}
	fields[HeaderKey] = rawHdr

	return encMode.Marshal(fields)
}

// Response is a decoded SMP response.
type Response struct {
	Header Header
	// Payload is the raw CBOR payload. For CoAP schemes it still contains HeaderKey.
	Payload []byte
	// RC is the SMPv1 return code, RCOK when absent.
	RC ReturnCode
	// GroupErr is the SMPv2 group error, nil when absent.
	GroupErr *GroupError
}

type statusFields struct {
	RC  *uint16 `cbor:"rc"`
	Err *struct {
		Group uint16 `cbor:"group"`
		RC    uint16 `cbor:"rc"`
	} `cbor:"err"`
}

// ParseResponse decodes a raw response packet of the given scheme.
//
// It fails with ErrBadHeader when no header can be found and with ErrBadResponse when the
// payload is truncated or not valid CBOR.
func ParseResponse(scheme Scheme, data []byte) (*Response, error) {
	var (
		hdr     Header
		payload []byte
		err     error
	)

	if scheme.IsCoap() {
		hdr, err = coapHeader(data)
		if err != nil {
			return nil, err
		}
		payload = data
	} else {
		hdr, err = DecodeHeader(data)
		if err != nil {
			return nil, err
		}
		payload = data[HeaderSize:]
		if len(payload) < int(hdr.Length) {
			return nil, fmt.Errorf("%w: payload truncated, header length %d, got %d", ErrBadResponse, hdr.Length, len(payload))
		}
		payload = payload[:hdr.Length]
	}

	resp := &Response{Header: hdr, Payload: payload}
	if len(payload) == 0 {
		return resp, nil
	}

	var status statusFields
	if err := decMode.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if status.RC != nil {
		resp.RC = ReturnCode(*status.RC)
	}
	if status.Err != nil {
		resp.GroupErr = &GroupError{Group: Group(status.Err.Group), RC: status.Err.RC}
	}

	return resp, nil
}

// Decode decodes the response payload into v, typically a struct with cbor tags.
func (r *Response) Decode(v any) error {
	if len(r.Payload) == 0 {
		return nil
	}
	if err := decMode.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	return nil
}

// Err returns the device reported error, or nil on success.
//
// An SMPv2 group error takes precedence over an SMPv1 return code.
func (r *Response) Err() error {
	if r.GroupErr != nil && r.GroupErr.RC != 0 {
		return r.GroupErr
	}
	if r.RC != RCOK {
		return &ReturnCodeError{RC: r.RC}
	}

	return nil
}

// ReadSequenceNumber extracts the sequence number of a raw packet without decoding the payload
// of standard schemes.
func ReadSequenceNumber(scheme Scheme, data []byte) (uint8, error) {
	if scheme.IsCoap() {
		hdr, err := coapHeader(data)
		if err != nil {
			return 0, err
		}

		return hdr.Seq, nil
	}

	if len(data) < HeaderSize {
		return 0, fmt.Errorf("%w: need %d bytes, got %d", ErrBadHeader, HeaderSize, len(data))
	}

	return data[6], nil
}

func coapHeader(data []byte) (Header, error) {
	var fields map[string]cbor.RawMessage
	if err := decMode.Unmarshal(data, &fields); err != nil {
		return Header{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}

	raw, ok := fields[HeaderKey]
	if !ok {
		return Header{}, fmt.Errorf("%w: missing %q key", ErrBadHeader, HeaderKey)
	}

	var hb []byte
	if err := decMode.Unmarshal(raw, &hb); err != nil {
		return Header{}, errors.Join(ErrBadHeader, err)
	}

	return DecodeHeader(hb)
}
