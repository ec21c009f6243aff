package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/host"
	"github.com/imbue-ai/mng/internal/hoststore"
	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/providers"
)

// AgentView is one agent surfaced by ListAgents, carrying enough host/
// provider context for callers (the list renderer, gc's work-dir sweep) to
// act on it without a second lookup.
type AgentView struct {
	Agent    *hoststore.AgentData
	HostID   ids.HostID
	HostName ids.HostName
	Provider string
}

// ItemError tags a single failure encountered while listing, per spec.md
// §4.9: "{provider|host|agent, message, type}".
type ItemError struct {
	Provider string
	Host     string
	Agent    string
	Message  string
	Type     string
}

// ListResult is ListAgents' accumulated outcome.
type ListResult struct {
	Agents []AgentView
	Errors []ItemError
}

// ListOptions configures ListAgents.
type ListOptions struct {
	IsStreaming   bool
	ErrorBehavior enums.ErrorBehavior
	Include       *Program
	Exclude       *Program
	// OnAgent, if set, is invoked for each agent as it's discovered
	// (streaming mode); it always also ends up in the returned
	// ListResult.Agents regardless of whether OnAgent is set.
	OnAgent func(AgentView)
	// Bind resolves a host that doesn't itself implement host.StatefulHost
	// (docker/ssh/remote hosts) to one backed by this process's local state
	// mirror. When nil, only hosts that are already stateful contribute
	// agents.
	Bind func(host.Host) (host.StatefulHost, error)
	// StateOf recomputes an agent's lifecycle state from live signals
	// (tmux session, pane process, idle activity) instead of trusting the
	// persisted cache — typically lifecycle.Engine.CurrentState, which is
	// where RUNNING agents surface as WAITING once idle. When nil, the
	// persisted state is reported as-is.
	StateOf func(host.StatefulHost, *hoststore.AgentData) (enums.AgentLifecycleState, error)
}

// ListAgents enumerates every agent across every provider in parallel,
// applying Include/Exclude CEL filters per-agent, and returns the merged
// result. Under ErrorBehaviorAbort the first error (provider, host, or
// filter-evaluation) aborts the whole list; under ErrorBehaviorContinue,
// errors accumulate in ListResult.Errors and discovery proceeds.
func ListAgents(ctx context.Context, g *concurrency.Group, provs map[string]providers.Provider, opts ListOptions) (*ListResult, error) {
	child := g.Child("list", 30)
	res := &ListResult{}
	var mu sync.Mutex
	var abortErr error

	recordErr := func(provider, hostRef, agentRef, kind, message string) bool {
		mu.Lock()
		defer mu.Unlock()
		if abortErr != nil {
			return false
		}
		res.Errors = append(res.Errors, ItemError{Provider: provider, Host: hostRef, Agent: agentRef, Message: message, Type: kind})
		if opts.ErrorBehavior == enums.ErrorBehaviorAbort {
			abortErr = fmt.Errorf("%s: %s", kind, message)
			return false
		}
		return true
	}

	for name, p := range provs {
		name, p := name, p
		child.StartNewThread("list/"+name, false, func(ctx context.Context) error {
			listProvider(ctx, name, p, opts, res, &mu, recordErr)
			return nil
		})
	}

	child.Cancel() // signal nothing further will be scheduled on this child
	_ = child.Wait()

	if abortErr != nil {
		return res, abortErr
	}
	return res, nil
}

func listProvider(ctx context.Context, name string, p providers.Provider, opts ListOptions, res *ListResult, mu *sync.Mutex, recordErr func(provider, hostRef, agentRef, kind, message string) bool) {
	hosts, err := p.ListHosts(ctx, false)
	if err != nil {
		recordErr(name, "", "", "ProviderError", err.Error())
		return
	}

	for _, h := range hosts {
		if !listHost(ctx, name, h, opts, res, mu, recordErr) {
			return
		}
	}
}

// listHost returns false once recordErr signals that ErrorBehaviorAbort has
// tripped, so the caller stops enumerating further hosts/agents immediately
// instead of finishing a pass whose result will be discarded.
func listHost(ctx context.Context, provider string, h host.Host, opts ListOptions, res *ListResult, mu *sync.Mutex, recordErr func(provider, hostRef, agentRef, kind, message string) bool) bool {
	stateful, ok := h.(host.StatefulHost)
	if !ok && opts.Bind != nil {
		bound, err := opts.Bind(h)
		if err != nil {
			return recordErr(provider, string(h.GetID()), "", "ProviderError", err.Error())
		}
		stateful, ok = bound, true
	}
	if !ok {
		return true // offline/unreachable hosts contribute nothing this pass
	}
	store := stateful.Store()

	agentIDs, err := store.ListAgentIDs()
	if err != nil {
		return recordErr(provider, string(h.GetID()), "", "NotFound", err.Error())
	}

	for _, id := range agentIDs {
		rec, err := store.ReadAgentRecord(id)
		if err != nil {
			if !recordErr(provider, string(h.GetID()), string(id), "NotFound", err.Error()) {
				return false
			}
			continue
		}

		// Refresh the cached state before filtering so a CEL state
		// predicate sees the live value, not the last persisted one.
		if opts.StateOf != nil {
			state, err := opts.StateOf(stateful, rec)
			if err != nil {
				if !recordErr(provider, string(h.GetID()), string(id), "ProviderError", err.Error()) {
					return false
				}
				continue
			}
			rec.State = state
		}

		match, err := MatchesFilters(rec, opts.Include, opts.Exclude)
		if err != nil {
			if !recordErr(provider, string(h.GetID()), string(id), "UserInput", err.Error()) {
				return false
			}
			continue
		}
		if !match {
			continue
		}

		view := AgentView{Agent: rec, HostID: h.GetID(), HostName: h.GetName(), Provider: provider}
		mu.Lock()
		res.Agents = append(res.Agents, view)
		mu.Unlock()
		if opts.OnAgent != nil {
			opts.OnAgent(view)
		}
	}
	return true
}
