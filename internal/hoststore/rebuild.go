package hoststore

import (
	"fmt"
	"os"
)

// RebuildReport describes drift found between CertifiedHostData's
// generated-work-dir registry and the agent records actually present on
// disk. Rebuild only reports; repairing drift is garbage collection's job
// (internal/gc), not the store's.
type RebuildReport struct {
	// MissingFromRegistry are work-dirs referenced by a live agent record
	// but absent from GeneratedWorkDirs — invariant violation: every
	// created agent's work-dir must be registered.
	MissingFromRegistry []string
	// OrphanedInRegistry are entries in GeneratedWorkDirs with no
	// corresponding agent record — candidates for GC to reclaim.
	OrphanedInRegistry []string
	// AgentsWithoutEnvFile lists agent IDs whose env file is missing.
	AgentsWithoutEnvFile []string
}

func (r *RebuildReport) Clean() bool {
	return len(r.MissingFromRegistry) == 0 && len(r.OrphanedInRegistry) == 0 && len(r.AgentsWithoutEnvFile) == 0
}

// Rebuild validates the host store's on-disk invariants: every persisted
// agent's work-dir is registered in generated_work_dirs, every registry
// entry corresponds to a live agent, and every agent carries an env file.
func (s *Store) Rebuild() (*RebuildReport, error) {
	certified, err := s.ReadCertifiedData()
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	agentIDs, err := s.ListAgentIDs()
	if err != nil {
		return nil, fmt.Errorf("rebuild: %w", err)
	}

	registry := make(map[string]bool, len(certified.GeneratedWorkDirs))
	for _, d := range certified.GeneratedWorkDirs {
		registry[d] = false // not yet matched to a live agent
	}

	report := &RebuildReport{}

	for _, id := range agentIDs {
		agent, err := s.ReadAgentRecord(id)
		if err != nil {
			continue // unreadable record is its own GC concern, not a registry mismatch
		}
		workDir := string(agent.WorkDir)
		if _, ok := registry[workDir]; ok {
			registry[workDir] = true
		} else if workDir != "" {
			report.MissingFromRegistry = append(report.MissingFromRegistry, workDir)
		}

		if _, err := s.ActivityTime(id, "CREATE"); err != nil {
			// activity dir unreadable is not itself fatal to rebuild
			_ = err
		}
		if _, statErr := os.Stat(s.AgentEnvPath(id)); statErr != nil {
			report.AgentsWithoutEnvFile = append(report.AgentsWithoutEnvFile, string(id))
		}
	}

	for d, matched := range registry {
		if !matched {
			report.OrphanedInRegistry = append(report.OrphanedInRegistry, d)
		}
	}

	return report, nil
}
