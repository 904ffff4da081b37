// Package ninepproto provides low-level routines for parsing
// and producing 9P2000 messages.
//
// The ninepproto package is to be used for making higher-level
// 9P2000 libraries. The parsing routines within make very few
// assumptions or decisions, so that they may be used for a wide
// variety of higher-level packages.
//
// When decoding messages, the ninepproto package bounds memory
// usage per connection using a fixed-size buffer, sized to the
// maximum message length negotiated for the connection. Decoded
// messages are not unmarshalled into structures; they are
// returned as validated views of the buffer, and individual
// fields are unpacked on demand through accessor methods.
package ninepproto
