// Package session owns the shared JDWP session: one physical reader and one
// physical writer on a transport, fanned out to many receivers.
//
// Ownership boundary:
// - packet pump (single reader, sequential synchronous fan-out)
// - receiver registry and activation protocol (activation, then replay, then live)
// - replay buffer and packet id generator
// - write path isolated from caller cancellation
// - Open -> Closing -> Closed lifecycle
//
// Delivery is synchronous: a slow receiver delays the next read and with it
// every other receiver. Packets passed to a receiver callback are only valid
// until the callback returns; use packet.Packet.Offline, or Receiver.Stream,
// to keep them longer.
package session
