// Package escodec implements the wire framing for the FreeSWITCH Event
// Socket Layer (ESL) protocol.
//
// Messages are two-phase: a block of "Name: Value" header lines terminated
// by a blank line, optionally followed by a body whose length is given by
// the Content-Length header. The codec only tokenizes this framing; it does
// not interpret Content-Type or decode nested bodies. See the event package
// for that.
package escodec
