// Package transport owns the byte channel a shared JDWP session runs on.
//
// Ownership boundary:
// - Transport contract: read and write with a deadline, close once
// - net.Conn adapter and in-memory pipe
// - JDWP handshake exchange
// - dialing with retry/backoff
package transport
