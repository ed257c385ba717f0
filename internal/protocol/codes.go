// Package protocol implements the newline-delimited text command protocol:
// a line is one or more '#'-separated units, each a code followed by
// '='-separated arguments.
package protocol

// Separators.
const (
	CommandSep  = "#"
	ArgumentSep = "="
)

// Command codes.
const (
	CodeName    = "NAME"
	CodeColor   = "COL"
	CodeExit    = "EXIT"
	CodeLive    = "LIVE"
	CodeMessage = "MSG"
	CodeBot     = "CBOT"
	CodeProj    = "CPROJ"
	CodeNamed   = "NBOT"
	CodeList    = "NLIST"
	CodeOrient  = "ORIENT"
	CodeUserMsg = "USRMSG"
	CodeEmpty   = "EMPTY"
	CodeAim     = "AIM"
	CodeFire    = "FIRE"
	CodeMove    = "MOVE"
	CodeSet     = "SET"
)

// Reply tokens.
const (
	// ErrorToken is the whole reply unit for any failed command.
	ErrorToken = "ERROR"
	// OK acknowledges a mutation.
	OK = "OK"
	// None answers a query that found nothing.
	None = "NONE"
)

// codeUnknown is the metrics label for codes outside the vocabulary.
const codeUnknown = "unknown"
