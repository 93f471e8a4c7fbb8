// Package event provides a typed view over escodec.RawEvent, categorized
// by Content-Type, with per-format accessors reached through Cast().
package event
