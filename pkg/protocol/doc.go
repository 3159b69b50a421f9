// Package protocol defines the mesh wire protocol: node addresses, the seven
// message variants nodes exchange, and the framing that carries them over a
// TCP stream.
//
// Every frame is a big-endian uint32 length followed by that many payload
// bytes. A zero length is not an empty message; it is the sentinel a peer
// writes before hanging up, and ReadFrame reports it as ErrDisconnect.
//
// Payloads use the protobuf wire format (tag, wire type, value) written with
// protowire directly rather than generated code:
//
//	1  kind           varint
//	2  address        bytes  {1 host string, 2 port varint}
//	3  neighbor       bytes  repeated, same shape as address
//	4  solves         varint
//	5  verifications  varint
//	6  grid           bytes  81 packed varints, row major; absent = null
//
// Unknown fields are skipped, so newer nodes can add fields without breaking
// older ones. An unknown kind decodes to ErrUnknownKind, which callers log
// and ignore; any other decode failure is ErrMalformed.
package protocol
