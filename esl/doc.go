// Package esl implements a FreeSWITCH Event Socket Layer client and
// server: Inbound connections that dial and authenticate against a
// running switch, and Outbound connections that accept a switch-initiated
// handshake, both exposing the same send_recv/recv interface on top of a
// single duplex stream carrying interleaved command replies and
// unsolicited events.
package esl
