// Package wire encodes and decodes the three byte layouts this daemon
// speaks: the IMP leader that prefixes every host↔IMP message, the NCP
// control messages exchanged on link 0, and the application command
// frames exchanged on the local datagram channel.
//
// All multi-byte integers are network byte order (big-endian), matching
// the ARPANET host-to-host convention rather than the little-endian
// layout IEC 60870-5 uses on the wire.
package wire
