// Package smp provides the protocol level building blocks of the Simple Management Protocol
// (SMP, also known as mcumgr) used to manage embedded devices over BLE, CoAP and UDP.
//
// This package offers the 8-byte SMP header codec, CBOR request/response packet helpers,
// the wrapping 8-bit sequence number generator and the generic ReorderBuffer that releases
// out-of-order responses strictly in request order. It also defines the Transport interface
// that concrete transports implement.
//
// Header Layout:
//
//	byte 0    : reserved(3) | version(2) | op(3)
//	byte 1    : flags
//	byte 2..3 : payload length, big endian
//	byte 4..5 : group ID, big endian
//	byte 6    : sequence number
//	byte 7    : command ID
//
// Schemes:
// Standard schemes (SchemeBLE, SchemeUDP) prepend the header to the CBOR payload. CoAP schemes
// (SchemeCoapBLE, SchemeCoapUDP) carry the header as a byte string under the "_h" key of the
// CBOR payload map.
//
// Reorder Buffer:
// Every outstanding request registers its sequence number with ReorderBuffer.EnqueueExpectation.
// Responses are fed in arrival order with Received, and Deliver hands back every buffered result
// once no earlier request is missing, in ascending sequence order.
package smp
