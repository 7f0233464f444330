// Package packet owns the JDWP packet view and its wire primitives.
//
// Ownership boundary:
// - fixed 11-byte header codec (id, length, flags, cmdSet/cmd or errorCode)
// - payload lifetimes: channel-bound views over a reusable read buffer and
//   offline (owned) copies
// - mutable builder for locally constructed packets
// - single-owner packet reader and encoder over a deadline transport
//
// A Packet handed out by a Reader is only valid until the next call to
// Reader.Next. Callers that keep a packet past that point must call
// Packet.Offline first.
package packet
