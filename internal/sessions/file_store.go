package sessions

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

const transcriptsDirName = "transcripts"

// FileStore is a durable Store backed by a JSONL session index
// (sessions.jsonl, one line per session, rewritten atomically on every
// mutation) and one append-only transcripts/<sanitized key>.jsonl file
// per session holding its message history. Appends are serialized
// per-key via an internal keyLocker so concurrent writers to different
// sessions don't block each other.
type FileStore struct {
	mu            sync.RWMutex
	baseDir       string
	indexPath     string
	transcriptDir string
	sessions      map[string]*models.Session
	locker        *keyLocker
}

// NewFileStore opens (or initializes) a file-backed store rooted at
// baseDir, loading the existing session index into memory.
func NewFileStore(baseDir string) (*FileStore, error) {
	transcriptDir := filepath.Join(baseDir, transcriptsDirName)
	if err := os.MkdirAll(transcriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("sessions: create transcripts dir: %w", err)
	}
	fs := &FileStore{
		baseDir:       baseDir,
		indexPath:     filepath.Join(baseDir, "sessions.jsonl"),
		transcriptDir: transcriptDir,
		sessions:      make(map[string]*models.Session),
		locker:        newKeyLocker(),
	}
	if err := fs.loadIndex(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) loadIndex() error {
	f, err := os.Open(fs.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("sessions: open index: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var s models.Session
		if err := json.Unmarshal(line, &s); err != nil {
			return fmt.Errorf("sessions: decode index line: %w", err)
		}
		session := s
		fs.sessions[session.Key] = &session
	}
	return scanner.Err()
}

// persistIndexLocked rewrites sessions.jsonl in full via tmp-then-rename.
// Callers must hold fs.mu (write lock).
func (fs *FileStore) persistIndexLocked() error {
	tmpPath := fs.indexPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("sessions: create index temp file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, s := range fs.sessions {
		data, err := json.Marshal(s)
		if err != nil {
			f.Close()
			os.Remove(tmpPath) //nolint:errcheck
			return fmt.Errorf("sessions: marshal session %s: %w", s.Key, err)
		}
		if _, err := w.Write(data); err != nil {
			f.Close()
			os.Remove(tmpPath) //nolint:errcheck
			return fmt.Errorf("sessions: write index: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			f.Close()
			os.Remove(tmpPath) //nolint:errcheck
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("sessions: flush index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("sessions: sync index: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("sessions: close index temp file: %w", err)
	}
	if err := os.Rename(tmpPath, fs.indexPath); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return fmt.Errorf("sessions: rename index into place: %w", err)
	}
	return nil
}

func (fs *FileStore) transcriptPath(key string) string {
	return filepath.Join(fs.transcriptDir, sanitizeKeyForFilename(key)+".jsonl")
}

func (fs *FileStore) Create(ctx context.Context, session *models.Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	clone := cloneSession(session)
	now := time.Now().UTC()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	fs.sessions[clone.Key] = clone
	if err := fs.persistIndexLocked(); err != nil {
		return err
	}
	*session = *clone
	return nil
}

func (fs *FileStore) Get(ctx context.Context, key string) (*models.Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	s, ok := fs.sessions[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(s), nil
}

func (fs *FileStore) Update(ctx context.Context, session *models.Session) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	existing, ok := fs.sessions[session.Key]
	if !ok {
		return ErrNotFound
	}
	clone := cloneSession(session)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = time.Now().UTC()
	fs.sessions[clone.Key] = clone
	return fs.persistIndexLocked()
}

// Delete hard-deletes the session from the index and archives (rather
// than discarding) its transcript file by renaming it into an archive/
// subdirectory, per the decision recorded for sessions.delete.
func (fs *FileStore) Delete(ctx context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.sessions[key]; !ok {
		return ErrNotFound
	}
	delete(fs.sessions, key)
	if err := fs.persistIndexLocked(); err != nil {
		return err
	}

	src := fs.transcriptPath(key)
	if _, err := os.Stat(src); err == nil {
		archiveDir := filepath.Join(fs.transcriptDir, "archive")
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			return fmt.Errorf("sessions: create archive dir: %w", err)
		}
		dst := filepath.Join(archiveDir, fmt.Sprintf("%s.%d.jsonl", sanitizeKeyForFilename(key), time.Now().UTC().UnixNano()))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("sessions: archive transcript: %w", err)
		}
	}
	return nil
}

func (fs *FileStore) GetOrCreate(ctx context.Context, key, agentID, channel, peerID string) (*models.Session, error) {
	fs.mu.Lock()
	if s, ok := fs.sessions[key]; ok {
		fs.mu.Unlock()
		return cloneSession(s), nil
	}
	now := time.Now().UTC()
	s := &models.Session{Key: key, AgentID: agentID, Channel: channel, PeerID: peerID, CreatedAt: now, UpdatedAt: now}
	fs.sessions[key] = s
	err := fs.persistIndexLocked()
	fs.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return cloneSession(s), nil
}

func (fs *FileStore) List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var out []*models.Session
	for _, s := range fs.sessions {
		if agentID != "" && s.AgentID != agentID {
			continue
		}
		if opts.Channel != "" && s.Channel != opts.Channel {
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > len(out) {
		return []*models.Session{}, nil
	}
	end := len(out)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return out[start:end], nil
}

// AppendMessage serializes access per session key so concurrent appends
// to the same transcript don't interleave, while appends to different
// sessions proceed without contention.
func (fs *FileStore) AppendMessage(ctx context.Context, key string, msg models.Message) error {
	fs.mu.RLock()
	_, ok := fs.sessions[key]
	fs.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	unlock := fs.locker.lock(key)
	defer unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("sessions: marshal message: %w", err)
	}

	f, err := os.OpenFile(fs.transcriptPath(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sessions: open transcript: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sessions: append message: %w", err)
	}

	fs.mu.Lock()
	if s, ok := fs.sessions[key]; ok {
		s.UpdatedAt = msg.Timestamp
	}
	fs.mu.Unlock()
	return nil
}

func (fs *FileStore) GetHistory(ctx context.Context, key string, limit int) ([]models.Message, error) {
	fs.mu.RLock()
	_, ok := fs.sessions[key]
	fs.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	unlock := fs.locker.lock(key)
	defer unlock()

	f, err := os.Open(fs.transcriptPath(key))
	if os.IsNotExist(err) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: open transcript: %w", err)
	}
	defer f.Close()

	var all []models.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("sessions: decode transcript line: %w", err)
		}
		all = append(all, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("sessions: scan transcript: %w", err)
	}

	if limit <= 0 || limit >= len(all) {
		return all, nil
	}
	return all[len(all)-limit:], nil
}

// ArchiveOldSessions moves sessions whose UpdatedAt is older than
// olderThan days out of the active index into the transcript archive
// directory, without deleting their transcripts.
func (fs *FileStore) ArchiveOldSessions(ctx context.Context, olderThanDays int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)

	fs.mu.Lock()
	var stale []string
	for key, s := range fs.sessions {
		if s.UpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
	}
	fs.mu.Unlock()

	for _, key := range stale {
		if err := fs.Delete(ctx, key); err != nil && err != ErrNotFound {
			return 0, fmt.Errorf("sessions: archive %s: %w", key, err)
		}
	}
	return len(stale), nil
}
