// Package protocol owns the wire contract shared by the transport stack.
//
// Ownership boundary:
// - error classes (transport, framing, security, decode, application)
// - value: self-describing binary payload format
// - frame: length-prefixed packet framing
// - security: cipher and integrity providers applied by frame
package protocol
