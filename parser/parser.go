// Package parser turns one line of the input grammar into a wire.Operation.
// The grammar is small and fixed, so, like the reference implementation's
// own line parser, this package works directly with strings.Split and
// strconv rather than reaching for a parser-combinator or grammar library —
// there is no recursion, precedence, or nesting to justify one.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kartikbazzad/repcrec/wire"
)

// SyntaxError reports a line that doesn't match any known command shape.
type SyntaxError struct {
	Line   string
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error: %s: %q", e.Reason, e.Line)
}

// IsTestMarker reports whether line is a `// Test <n>` marker, and if so
// returns the test number.
func IsTestMarker(line string) (int, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return 0, false
	}
	body := strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
	fields := strings.Fields(body)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Test") {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Parse turns one line into an Operation. It returns ok=false with a nil
// error for blank lines and plain `//` comments (including `// Test <n>`
// markers, which callers should check for with IsTestMarker before calling
// Parse); a non-nil *SyntaxError for anything that looks like a command but
// doesn't match its shape; and ok=true otherwise.
func Parse(line string) (wire.Operation, bool, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "//") {
		return wire.Operation{}, false, nil
	}

	open := strings.IndexByte(trimmed, '(')
	close := strings.LastIndexByte(trimmed, ')')
	if open < 0 || close < open {
		return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "missing parentheses"}
	}
	verb := trimmed[:open]
	argsPart := trimmed[open+1 : close]
	var args []string
	if strings.TrimSpace(argsPart) != "" {
		for _, a := range strings.Split(argsPart, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	op := wire.Operation{Line: line}

	switch verb {
	case "begin":
		if len(args) != 1 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "begin takes one transaction id"}
		}
		op.Kind = wire.Begin
		op.Tid = args[0]

	case "beginRO":
		if len(args) != 1 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "beginRO takes one transaction id"}
		}
		op.Kind = wire.BeginRO
		op.Tid = args[0]

	case "R":
		if len(args) != 2 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "R takes a transaction id and a variable"}
		}
		op.Kind = wire.Read
		op.Tid = args[0]
		op.Var = args[1]

	case "W":
		if len(args) != 3 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "W takes a transaction id, a variable, and a value"}
		}
		val, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "value must be an integer"}
		}
		op.Kind = wire.Write
		op.Tid = args[0]
		op.Var = args[1]
		op.Val = val

	case "end":
		if len(args) != 1 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "end takes one transaction id"}
		}
		op.Kind = wire.End
		op.Tid = args[0]

	case "fail":
		if len(args) != 1 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "fail takes one site id"}
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "site id must be an integer"}
		}
		op.Kind = wire.Fail
		op.Site = id

	case "recover":
		if len(args) != 1 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "recover takes one site id"}
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "site id must be an integer"}
		}
		op.Kind = wire.Recover
		op.Site = id

	case "dump":
		if len(args) != 0 {
			return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "dump takes no arguments"}
		}
		op.Kind = wire.Dump

	default:
		return wire.Operation{}, false, &SyntaxError{Line: line, Reason: "unknown command " + verb}
	}

	return op, true, nil
}
