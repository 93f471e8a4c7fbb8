// Package command builds well-formed ESL command text: a command line,
// optional header lines, and a trailing blank line. See
// http://wiki.freeswitch.org/wiki/Event_Socket#Command_Documentation for
// the commands themselves.
package command
