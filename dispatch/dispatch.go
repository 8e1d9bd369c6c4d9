// Package dispatch maps a parsed wire.Operation to the matching
// repcrec.Manager call, translating the manager's typed Outcome (or
// ProgrammerError) into a wire.OperationResult the caller can act on without
// scraping text. This mirrors the OpCode-switch idiom the teacher's own wire
// protocol layer uses to route a decoded request to its handler.
package dispatch

import (
	"fmt"

	"github.com/kartikbazzad/repcrec"
	"github.com/kartikbazzad/repcrec/wire"
)

// Dispatch routes op to the matching Manager method and renders the result.
// A *repcrec.ProgrammerError surfaces as a wire.OperationResult of Kind
// Ignored with the error text in Message, so the caller can log it and move
// on without a type switch of its own.
func Dispatch(mgr *repcrec.Manager, op wire.Operation) wire.OperationResult {
	switch op.Kind {
	case wire.Begin:
		return fromOutcome(mgr.Begin(op.Tid))
	case wire.BeginRO:
		return fromOutcome(mgr.BeginRO(op.Tid))
	case wire.Read:
		return fromOutcome(mgr.Read(op.Tid, op.Var))
	case wire.Write:
		return fromOutcome(mgr.Write(op.Tid, op.Var, op.Val))
	case wire.End:
		return fromOutcome(mgr.End(op.Tid))
	case wire.Fail:
		return fromOutcome(mgr.Fail(op.Site))
	case wire.Recover:
		return fromOutcome(mgr.Recover(op.Site))
	case wire.Dump:
		return fromDump(mgr)
	default:
		return wire.OperationResult{Kind: wire.Ignored, Message: fmt.Sprintf("unknown operation kind %v", op.Kind)}
	}
}

func fromOutcome(outcome *repcrec.Outcome, err error) wire.OperationResult {
	if err != nil {
		return wire.OperationResult{Kind: wire.Ignored, Message: err.Error()}
	}

	result := wire.OperationResult{Message: outcome.Message, Values: nil}
	switch outcome.Kind {
	case repcrec.OutcomeValue:
		result.Kind = wire.Value
	case repcrec.OutcomeAbort:
		result.Kind = wire.Aborted
	case repcrec.OutcomeIgnored:
		result.Kind = wire.Ignored
	default:
		result.Kind = wire.OK
	}
	return result
}

func fromDump(mgr *repcrec.Manager) wire.OperationResult {
	outcome := mgr.Dump()
	result := wire.OperationResult{Kind: wire.DumpReport}
	for _, s := range outcome.Dump {
		row := wire.SiteDump{SiteID: s.SiteID, Up: s.Up}
		for _, v := range s.Vars {
			row.Vars = append(row.Vars, wire.VarDump{Var: v.Var, Value: v.Value})
		}
		result.Values = append(result.Values, row)
	}
	return result
}
