// Package hoststore implements the on-disk persistent state layout rooted
// at a host's host_dir: the certified host record, per-agent records and
// environment files, activity touch-files, and the generated-work-dir
// registry that garbage collection uses as its source of truth.
//
// Every write goes through writeFileAtomic (tmpfile + fsync + rename) so a
// reader never observes a torn file, and every multi-file mutation is
// wrapped in the host's cooperative lock. JSON records round-trip: keys a
// newer (or plugin-extended) writer added are preserved verbatim when an
// older reader rewrites the file.
package hoststore

import (
	"encoding/json"
	"time"

	"github.com/imbue-ai/mng/internal/enums"
	"github.com/imbue-ai/mng/internal/ids"
)

// CertifiedHostData is the contents of <host_dir>/data.json: the
// provider-independent record of a host's identity and the generated
// work-dirs it is responsible for cleaning up.
type CertifiedHostData struct {
	ID                 ids.HostID        `json:"host_id"`
	Name               ids.HostName      `json:"host_name"`
	Provider           string            `json:"provider"`
	State              enums.HostState   `json:"state"`
	Tags               map[string]string `json:"tags,omitempty"`
	GeneratedWorkDirs  []string          `json:"generated_work_dirs"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	DestroyedAt        *time.Time        `json:"destroyed_at,omitempty"`
	ProviderInstanceID string            `json:"provider_instance_id,omitempty"`

	extra map[string]json.RawMessage
}

// AddGeneratedWorkDir appends dir to the registry if not already present.
func (d *CertifiedHostData) AddGeneratedWorkDir(dir string) {
	for _, existing := range d.GeneratedWorkDirs {
		if existing == dir {
			return
		}
	}
	d.GeneratedWorkDirs = append(d.GeneratedWorkDirs, dir)
}

// RemoveGeneratedWorkDir removes dir from the registry, if present.
func (d *CertifiedHostData) RemoveGeneratedWorkDir(dir string) {
	out := d.GeneratedWorkDirs[:0]
	for _, existing := range d.GeneratedWorkDirs {
		if existing != dir {
			out = append(out, existing)
		}
	}
	d.GeneratedWorkDirs = out
}

// certifiedKnownKeys lists every JSON key the struct itself claims; keys
// outside this set survive a read-rewrite cycle verbatim. Keep in lockstep
// with the struct tags above.
var certifiedKnownKeys = []string{
	"host_id", "host_name", "provider", "state", "tags",
	"generated_work_dirs", "created_at", "updated_at", "destroyed_at",
	"provider_instance_id",
}

func (d *CertifiedHostData) UnmarshalJSON(b []byte) error {
	type plain CertifiedHostData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = CertifiedHostData(p)
	return unmarshalUnknown(b, certifiedKnownKeys, &d.extra)
}

func (d CertifiedHostData) MarshalJSON() ([]byte, error) {
	type plain CertifiedHostData
	return marshalPreservingUnknown(plain(d), d.extra)
}

// AgentHostRef is the "host" object embedded in an agent's data.json: just
// enough to resolve the owning host through a provider registry without the
// record carrying a live object reference.
type AgentHostRef struct {
	ID           ids.HostID   `json:"id"`
	Name         ids.HostName `json:"name"`
	ProviderName string       `json:"provider_name"`
}

// AgentData is the contents of agents/<agent_id>/data.json.
type AgentData struct {
	ID          ids.AgentID               `json:"id"`
	Name        ids.AgentName             `json:"name"`
	AgentType   string                    `json:"type"`
	Command     enums.CommandString       `json:"command"`
	WorkDir     enums.WorkDirPath         `json:"work_dir"`
	WorkDirMode enums.WorkDirMode         `json:"work_dir_mode"`
	CreatedAt   time.Time                 `json:"create_time"`
	StartOnBoot bool                      `json:"start_on_boot"`
	State       enums.AgentLifecycleState `json:"state"`
	Host        AgentHostRef              `json:"host"`
	Plugin      map[string]map[string]any `json:"plugin,omitempty"`
	SessionName string                    `json:"session_name"`
	UpdatedAt   time.Time                 `json:"updated_at"`
	ReplacedBy  ids.AgentID               `json:"replaced_by,omitempty"`
	Tags        map[string]string         `json:"tags,omitempty"`

	extra map[string]json.RawMessage
}

// SetPluginData records one plugin's key under the record's plugin map,
// allocating the nested maps on first use. Plugin data is the only part of
// an agent record plugins may mutate after creation.
func (d *AgentData) SetPluginData(pluginName, key string, value any) {
	if d.Plugin == nil {
		d.Plugin = map[string]map[string]any{}
	}
	if d.Plugin[pluginName] == nil {
		d.Plugin[pluginName] = map[string]any{}
	}
	d.Plugin[pluginName][key] = value
}

// agentKnownKeys mirrors AgentData's struct tags; see certifiedKnownKeys.
var agentKnownKeys = []string{
	"id", "name", "type", "command", "work_dir", "work_dir_mode",
	"create_time", "start_on_boot", "state", "host", "plugin",
	"session_name", "updated_at", "replaced_by", "tags",
}

func (d *AgentData) UnmarshalJSON(b []byte) error {
	type plain AgentData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = AgentData(p)
	return unmarshalUnknown(b, agentKnownKeys, &d.extra)
}

func (d AgentData) MarshalJSON() ([]byte, error) {
	type plain AgentData
	return marshalPreservingUnknown(plain(d), d.extra)
}

// unmarshalUnknown captures the keys of b that knownKeys does not claim, so
// a later rewrite can carry them forward. Known keys are dropped here rather
// than filtered at marshal time: an omitempty field cleared between read and
// rewrite must stay cleared, not resurface from the captured raw bytes.
func unmarshalUnknown(b []byte, knownKeys []string, extra *map[string]json.RawMessage) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(b, &all); err != nil {
		return err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		all = nil
	}
	*extra = all
	return nil
}

// marshalPreservingUnknown serializes known, then layers the captured
// unknown keys back in, so a rewrite by this version never drops a field a
// newer writer added. With extras present, keys come out sorted, which also
// gives a deterministic serialization order.
func marshalPreservingUnknown(known any, extra map[string]json.RawMessage) ([]byte, error) {
	raw, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return raw, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, claimed := merged[k]; !claimed {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
