package hoststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/imbue-ai/mng/internal/ids"
	"github.com/imbue-ai/mng/internal/lock"
)

// LockNotHeldError signals that a caller invoked a mutating operation that
// requires lock_cooperatively() without holding it.
type LockNotHeldError struct {
	HostDir string
}

func (e *LockNotHeldError) Error() string {
	return fmt.Sprintf("host store at %s: operation requires the host lock to be held", e.HostDir)
}

const (
	lockFileName = "lock"
	dataFileName = "data.json"
	logsDirName  = "logs"
	agentsDir    = "agents"
	envFileName  = "env"
	activityDir  = "activity"
)

// Store is rooted at a single host's host_dir and implements the layout
// described for §4.2: lock file, certified data.json, per-agent
// directories, activity touch-files, and log streams.
type Store struct {
	hostDir string
	fl      *lock.FileLock

	mu       sync.Mutex
	lockHeld bool
}

// Open returns a Store rooted at hostDir, creating the directory structure
// if it does not yet exist.
func Open(hostDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(hostDir, agentsDir), 0755); err != nil {
		return nil, fmt.Errorf("creating host dir %s: %w", hostDir, err)
	}
	if err := os.MkdirAll(filepath.Join(hostDir, logsDirName), 0755); err != nil {
		return nil, fmt.Errorf("creating logs dir under %s: %w", hostDir, err)
	}
	return &Store{
		hostDir: hostDir,
		fl:      lock.New(filepath.Join(hostDir, lockFileName)),
	}, nil
}

// HostDir returns the root directory this store manages.
func (s *Store) HostDir() string { return s.hostDir }

// LockCooperatively acquires the host's exclusive lock for the duration of
// fn, as required before any operation that mutates agent records or
// certified data (agent create/destroy, state rewrite, certified-data
// rewrite). The mutating Store methods verify the lock is held and return
// LockNotHeldError otherwise.
func (s *Store) LockCooperatively(ctx context.Context, fn func() error) error {
	unlock, err := s.fl.Lock(ctx)
	if err != nil {
		return fmt.Errorf("locking host store %s: %w", s.hostDir, err)
	}
	s.mu.Lock()
	s.lockHeld = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.lockHeld = false
		s.mu.Unlock()
		unlock()
	}()
	return fn()
}

// requireLock guards the mutating methods: they are only legal inside a
// LockCooperatively scope. Activity touch-files are exempt — they are
// single-file mtime updates with no cross-file invariant to protect.
func (s *Store) requireLock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lockHeld {
		return &LockNotHeldError{HostDir: s.hostDir}
	}
	return nil
}

func (s *Store) dataPath() string { return filepath.Join(s.hostDir, dataFileName) }

// ReadCertifiedData loads the host's certified data.json. It returns
// os.ErrNotExist (wrapped) if the host has never been certified.
func (s *Store) ReadCertifiedData() (*CertifiedHostData, error) {
	raw, err := os.ReadFile(s.dataPath())
	if err != nil {
		return nil, fmt.Errorf("reading certified data at %s: %w", s.dataPath(), err)
	}
	var d CertifiedHostData
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing certified data at %s: %w", s.dataPath(), err)
	}
	return &d, nil
}

// WriteCertifiedData atomically rewrites data.json. Must be called under
// LockCooperatively.
func (s *Store) WriteCertifiedData(d *CertifiedHostData) error {
	if err := s.requireLock(); err != nil {
		return err
	}
	d.UpdatedAt = nowFunc()
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling certified data: %w", err)
	}
	return writeFileAtomic(s.dataPath(), raw, 0644)
}

func (s *Store) agentDir(id ids.AgentID) string {
	return filepath.Join(s.hostDir, agentsDir, string(id))
}

func (s *Store) agentDataPath(id ids.AgentID) string {
	return filepath.Join(s.agentDir(id), dataFileName)
}

// CreateAgentRecord creates the on-disk directory tree for a new agent and
// writes its initial data.json. Must be called under LockCooperatively.
func (s *Store) CreateAgentRecord(data *AgentData) error {
	if err := s.requireLock(); err != nil {
		return err
	}
	dir := s.agentDir(data.ID)
	for _, sub := range []string{"", logsDirName, activityDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("creating agent dir %s: %w", filepath.Join(dir, sub), err)
		}
	}
	data.CreatedAt = nowFunc()
	data.UpdatedAt = data.CreatedAt
	return s.WriteAgentRecord(data)
}

// WriteAgentRecord atomically rewrites an existing agent's data.json. Must
// be called under LockCooperatively.
func (s *Store) WriteAgentRecord(data *AgentData) error {
	if err := s.requireLock(); err != nil {
		return err
	}
	data.UpdatedAt = nowFunc()
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling agent data: %w", err)
	}
	return writeFileAtomic(s.agentDataPath(data.ID), raw, 0644)
}

// ReadAgentRecord loads a single agent's data.json.
func (s *Store) ReadAgentRecord(id ids.AgentID) (*AgentData, error) {
	raw, err := os.ReadFile(s.agentDataPath(id))
	if err != nil {
		return nil, fmt.Errorf("reading agent record %s: %w", id, err)
	}
	var data AgentData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing agent record %s: %w", id, err)
	}
	return &data, nil
}

// ListAgentIDs enumerates every agent directory currently persisted on this
// host, regardless of what CertifiedHostData.GeneratedWorkDirs claims — used
// by GC and Rebuild to detect drift between the two.
func (s *Store) ListAgentIDs() ([]ids.AgentID, error) {
	entries, err := os.ReadDir(filepath.Join(s.hostDir, agentsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing agents dir: %w", err)
	}
	out := make([]ids.AgentID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, ids.AgentID(e.Name()))
		}
	}
	return out, nil
}

// DestroyAgentRecord removes an agent's entire on-disk directory tree. Must
// be called under LockCooperatively.
func (s *Store) DestroyAgentRecord(id ids.AgentID) error {
	if err := s.requireLock(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.agentDir(id)); err != nil {
		return fmt.Errorf("removing agent dir for %s: %w", id, err)
	}
	return nil
}

// WriteAgentEnv atomically rewrites an agent's env file as KEY=VALUE lines,
// restricted to mode 0600 since it may carry secrets passed via
// --pass-env/--env-file/--env.
func (s *Store) WriteAgentEnv(id ids.AgentID, env map[string]string) error {
	if err := s.requireLock(); err != nil {
		return err
	}
	var buf []byte
	for k, v := range env {
		buf = append(buf, []byte(fmt.Sprintf("%s=%s\n", k, v))...)
	}
	return writeFileAtomic(s.AgentEnvPath(id), buf, 0600)
}

// AgentEnvPath returns the canonical env file location for an agent.
func (s *Store) AgentEnvPath(id ids.AgentID) string {
	return filepath.Join(s.agentDir(id), envFileName)
}

// TouchActivity records an activity signal for source by updating the mtime
// of its empty touch-file, creating it if absent.
func (s *Store) TouchActivity(id ids.AgentID, source string) error {
	path := filepath.Join(s.agentDir(id), activityDir, source)
	now := nowFunc()
	if err := os.Chtimes(path, now, now); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("touching activity file %s: %w", path, err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("creating activity file %s: %w", path, err)
		}
		return f.Close()
	}
	return nil
}

// ActivityTime returns the last-touched time for source, or the zero time
// if that source has never fired.
func (s *Store) ActivityTime(id ids.AgentID, source string) (time.Time, error) {
	path := filepath.Join(s.agentDir(id), activityDir, source)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("stat activity file %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// AgentLogsDir returns the per-agent command log directory.
func (s *Store) AgentLogsDir(id ids.AgentID) string {
	return filepath.Join(s.agentDir(id), logsDirName)
}

// CommandScopeLogsDir returns the host-level command-scope log stream
// directory.
func (s *Store) CommandScopeLogsDir() string {
	return filepath.Join(s.hostDir, logsDirName)
}

// nowFunc exists so tests can observe deterministic timestamps if needed;
// production code always uses time.Now.
var nowFunc = time.Now
