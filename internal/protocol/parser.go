package protocol

import "strings"

// Unit is one command unit of a line.
type Unit struct {
	// Code is the command code, upper-cased.
	Code string
	// Args are the positional arguments, verbatim.
	Args []string
}

// ParseLine splits a line into units. Surrounding whitespace and a trailing
// carriage return are ignored; empty units are dropped.
//
// Postcondition: every returned unit has a non-empty Code.
func ParseLine(line string) []Unit {
	line = strings.TrimRight(line, "\r\n")
	var units []Unit
	for _, raw := range strings.Split(line, CommandSep) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ArgumentSep)
		code := strings.ToUpper(strings.TrimSpace(parts[0]))
		if code == "" {
			continue
		}
		var args []string
		if len(parts) > 1 {
			args = parts[1:]
		}
		units = append(units, Unit{Code: code, Args: args})
	}
	return units
}

// FormatUnit renders a reply unit: code followed by '='-joined arguments.
func FormatUnit(code string, args ...string) string {
	if len(args) == 0 {
		return code
	}
	return code + ArgumentSep + strings.Join(args, ArgumentSep)
}

// JoinUnits renders a reply line body from its units.
func JoinUnits(units []string) string {
	return strings.Join(units, CommandSep)
}

// String renders the unit back to wire form.
func (u Unit) String() string {
	return FormatUnit(u.Code, u.Args...)
}
