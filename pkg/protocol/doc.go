// Package protocol defines the wire-level control-plane messages exchanged
// with connected clients: subscribe/unsubscribe requests, notification
// updates, and structured error frames.
//
// The message type set is closed. ParseMessageType rejects anything outside
// it so dispatch code can switch exhaustively over MessageType values instead
// of string-matching with a silent default branch.
package protocol
