package internal

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultRefreshInterval is how stale the cached session list may be
// before List triggers a background resynchronization.
const defaultRefreshInterval = 30 * time.Second

// sessionSnapshot is the durable directory-level record: the
// last-known session list, used for instant render before the network
// round-trip completes.
type sessionSnapshot struct {
	Sessions  []ChatSession `yaml:"sessions"`
	SavedAt   time.Time     `yaml:"saved_at"`
	ServerURL string        `yaml:"server_url"`
}

// SessionDirectory holds the ordered set of sessions known to the
// current user. The cache reflects last-confirmed server state except
// for create, which is optimistically inserted at the head (the server
// assigns the id, so the insert cannot conflict).
type SessionDirectory struct {
	api       *APIClient
	store     *TranscriptStore
	indexPath string
	serverURL string

	mu          sync.Mutex
	sessions    []ChatSession
	refreshedAt time.Time
	refreshing  bool

	refreshInterval time.Duration
}

// NewSessionDirectory creates a directory backed by the given API
// client, transcript store (for purges), and snapshot file.
func NewSessionDirectory(api *APIClient, store *TranscriptStore, indexPath, serverURL string) *SessionDirectory {
	d := &SessionDirectory{
		api:             api,
		store:           store,
		indexPath:       indexPath,
		serverURL:       serverURL,
		refreshInterval: defaultRefreshInterval,
	}
	d.loadSnapshot()
	return d
}

// List returns the cached ordered session list immediately. If the
// cache is stale a background refresh is started; callers observe the
// update on a later List call.
func (d *SessionDirectory) List() []ChatSession {
	d.mu.Lock()
	defer d.mu.Unlock()

	if time.Since(d.refreshedAt) > d.refreshInterval && !d.refreshing {
		d.refreshing = true
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := d.Refresh(ctx); err != nil {
				LogWarn("Background session refresh failed: %v", err)
			}
			d.mu.Lock()
			d.refreshing = false
			d.mu.Unlock()
		}()
	}

	out := make([]ChatSession, len(d.sessions))
	copy(out, d.sessions)
	return out
}

// Refresh synchronously replaces the cache with the server's list
func (d *SessionDirectory) Refresh(ctx context.Context) error {
	sessions, err := d.api.ListSessions(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.sessions = sessions
	d.refreshedAt = time.Now()
	d.mu.Unlock()

	d.saveSnapshot()
	return nil
}

// Create requests a new session and inserts it at the head of the
// cache. Any stale transcript remnant under the new id is purged.
func (d *SessionDirectory) Create(ctx context.Context, title string, documentID *int64) (*ChatSession, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	session, err := d.api.CreateSession(ctx, title, documentID)
	if err != nil {
		return nil, err
	}

	// Ids are server-assigned and should be unused, but reject any
	// stale on-disk remnant under this id.
	if err := d.store.Clear(session.ID); err != nil {
		LogWarn("Failed to clear stale transcript for session %d: %v", session.ID, err)
	}

	d.mu.Lock()
	d.sessions = append([]ChatSession{*session}, d.sessions...)
	d.mu.Unlock()

	d.saveSnapshot()
	return session, nil
}

// Update sends a partial update. On success the confirmed entry
// replaces the cached one; on failure the cache is left unchanged.
func (d *SessionDirectory) Update(ctx context.Context, id int64, patch SessionPatch) (*ChatSession, error) {
	session, err := d.api.UpdateSession(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	d.reconcile(*session)
	d.saveSnapshot()
	return session, nil
}

// Remove deletes a session server-side, drops it from the cache, and
// purges its transcript.
func (d *SessionDirectory) Remove(ctx context.Context, id int64) error {
	if err := d.api.DeleteSession(ctx, id); err != nil {
		return err
	}

	d.mu.Lock()
	kept := d.sessions[:0]
	for _, s := range d.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	d.sessions = kept
	d.mu.Unlock()

	if err := d.store.Clear(id); err != nil {
		LogWarn("Failed to purge transcript for deleted session %d: %v", id, err)
	}

	d.saveSnapshot()
	return nil
}

// Get returns the cached entry for a session id, if present
func (d *SessionDirectory) Get(id int64) (ChatSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return ChatSession{}, false
}

// reconcile replaces the cached entry matching the confirmed one by
// id; in-flight updates therefore resolve last-writer-wins per entry.
func (d *SessionDirectory) reconcile(confirmed ChatSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.sessions {
		if s.ID == confirmed.ID {
			d.sessions[i] = confirmed
			return
		}
	}
	d.sessions = append(d.sessions, confirmed)
}

// loadSnapshot seeds the cache from the durable snapshot. An
// unreadable snapshot is a cache miss, not an error.
func (d *SessionDirectory) loadSnapshot() {
	data, err := os.ReadFile(d.indexPath)
	if err != nil {
		return
	}

	var snap sessionSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		LogWarn("Ignoring unreadable session snapshot: %v", err)
		return
	}
	if snap.ServerURL != "" && snap.ServerURL != d.serverURL {
		LogInfo("Session snapshot belongs to %s, ignoring", snap.ServerURL)
		return
	}

	d.mu.Lock()
	d.sessions = snap.Sessions
	d.mu.Unlock()
}

func (d *SessionDirectory) saveSnapshot() {
	d.mu.Lock()
	snap := sessionSnapshot{
		Sessions:  append([]ChatSession(nil), d.sessions...),
		SavedAt:   time.Now().UTC(),
		ServerURL: d.serverURL,
	}
	d.mu.Unlock()

	data, err := yaml.Marshal(&snap)
	if err != nil {
		LogWarn("Failed to encode session snapshot: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(d.indexPath), 0755); err != nil {
		LogWarn("Failed to create snapshot directory: %v", err)
		return
	}
	if err := os.WriteFile(d.indexPath, data, 0644); err != nil {
		LogWarn("Failed to write session snapshot: %v", err)
	}
}

// SetRefreshInterval overrides the staleness window (used in tests)
func (d *SessionDirectory) SetRefreshInterval(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if interval <= 0 {
		interval = defaultRefreshInterval
	}
	d.refreshInterval = interval
}
