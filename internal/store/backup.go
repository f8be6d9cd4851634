package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Blob is the export format and the value stored under every backup key.
type Blob struct {
	Version    string            `json:"version"`
	ExportTime time.Time         `json:"exportTime"`
	Data       map[string]string `json:"data"`
}

// BackupInfo describes a stored backup.
type BackupInfo struct {
	ID        string
	CreatedAt time.Time
	Keys      []string
}

// ImportResult reports the outcome of ImportAll.
type ImportResult struct {
	Success bool
	Error   string
}

// Usage summarizes how much storage the chat data occupies.
type Usage struct {
	TotalBytes int
	Items      int
	Keys       map[string]int // bytes per key
}

func (s *Store) collect(ctx context.Context, keys []string) (map[string]string, error) {
	data := make(map[string]string, len(keys))
	for _, key := range keys {
		v, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			data[key] = v
		}
	}
	return data, nil
}

// Backup copies the raw values of keys (every data key when keys is empty)
// into a new backup and evicts the oldest backups beyond the cap.
func (s *Store) Backup(ctx context.Context, keys ...string) (string, error) {
	if len(keys) == 0 {
		keys = DataKeys
	}
	s.backupMu.Lock()
	defer s.backupMu.Unlock()

	data, err := s.collect(ctx, keys)
	if err != nil {
		err = fmt.Errorf("failed to create backup: %w", err)
		s.warn(err)
		return "", err
	}

	now := s.now()
	ms := now.UnixMilli()
	var id string
	for {
		id = backupPrefix + strconv.FormatInt(ms, 10)
		_, exists, err := s.kv.Get(ctx, id)
		if err != nil {
			err = fmt.Errorf("failed to create backup: %w", err)
			s.warn(err)
			return "", err
		}
		if !exists {
			break
		}
		ms++
	}

	b, err := json.Marshal(Blob{Version: Version, ExportTime: now.UTC(), Data: data})
	if err != nil {
		return "", fmt.Errorf("failed to encode backup: %w", err)
	}
	if err := s.kv.Set(ctx, id, string(b)); err != nil {
		err = fmt.Errorf("failed to create backup: %w", err)
		s.warn(err)
		return "", err
	}
	s.logger.Info("backup created", "id", id, "keys", len(data))

	s.evictBackups(ctx)
	return id, nil
}

// backupIDs returns backup keys ordered oldest first.
func (s *Store) backupIDs(ctx context.Context) ([]string, error) {
	ids, err := s.kv.Keys(ctx, backupPrefix)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool {
		return backupMillis(ids[i]) < backupMillis(ids[j])
	})
	return ids, nil
}

func backupMillis(id string) int64 {
	ms, _ := strconv.ParseInt(strings.TrimPrefix(id, backupPrefix), 10, 64)
	return ms
}

func (s *Store) evictBackups(ctx context.Context) {
	ids, err := s.backupIDs(ctx)
	if err != nil {
		s.warn(fmt.Errorf("failed to list backups: %w", err))
		return
	}
	for len(ids) > s.maxBackups {
		if err := s.kv.Delete(ctx, ids[0]); err != nil {
			s.warn(fmt.Errorf("failed to evict backup: %w", err))
			return
		}
		s.logger.Debug("backup evicted", "id", ids[0])
		ids = ids[1:]
	}
}

// Backups lists the stored backups, newest first.
func (s *Store) Backups(ctx context.Context) ([]BackupInfo, error) {
	ids, err := s.backupIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	out := make([]BackupInfo, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		info := BackupInfo{ID: ids[i], CreatedAt: time.UnixMilli(backupMillis(ids[i]))}
		if raw, ok, err := s.kv.Get(ctx, ids[i]); err == nil && ok {
			var blob Blob
			if json.Unmarshal([]byte(raw), &blob) == nil {
				for k := range blob.Data {
					info.Keys = append(info.Keys, k)
				}
				sort.Strings(info.Keys)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

// Restore writes the values of backup id back under their keys. It reports
// false, after warning, when the backup is missing or unreadable.
func (s *Store) Restore(ctx context.Context, id string) bool {
	if !strings.HasPrefix(id, backupPrefix) {
		id = backupPrefix + id
	}
	raw, ok, err := s.kv.Get(ctx, id)
	if err == nil && !ok {
		err = ErrBackupNotFound
	}
	if err != nil {
		s.warn(fmt.Errorf("failed to restore %s: %w", id, err))
		return false
	}
	var blob Blob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		s.warn(fmt.Errorf("failed to parse backup %s: %w", id, err))
		return false
	}
	if err := s.writeRaw(ctx, blob.Data); err != nil {
		s.warn(fmt.Errorf("failed to restore %s: %w", id, err))
		return false
	}
	s.logger.Info("backup restored", "id", id)
	return true
}

// writeRaw stores values verbatim. Only data keys are accepted.
func (s *Store) writeRaw(ctx context.Context, data map[string]string) error {
	defer s.written.Reset()
	for _, key := range DataKeys {
		v, ok := data[key]
		if !ok {
			continue
		}
		if err := s.kv.Set(ctx, key, v); err != nil {
			return err
		}
	}
	for key := range data {
		if !isDataKey(key) {
			s.logger.Warn("ignoring unknown key", "key", key)
		}
	}
	return nil
}

func isDataKey(key string) bool {
	for _, k := range DataKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ExportAll returns every data key as an export blob.
func (s *Store) ExportAll(ctx context.Context) (string, error) {
	data, err := s.collect(ctx, DataKeys)
	if err != nil {
		err = fmt.Errorf("failed to export data: %w", err)
		s.warn(err)
		return "", err
	}
	b, err := json.MarshalIndent(Blob{Version: Version, ExportTime: s.now().UTC(), Data: data}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}
	return string(b), nil
}

// ImportAll replaces the stored data with the contents of an export blob.
// The current data is backed up first.
func (s *Store) ImportAll(ctx context.Context, blob string) ImportResult {
	var b Blob
	if err := json.Unmarshal([]byte(blob), &b); err != nil {
		return ImportResult{Error: fmt.Sprintf("invalid import data: %v", err)}
	}
	if b.Data == nil {
		return ImportResult{Error: "invalid import data: missing data"}
	}
	if _, err := s.Backup(ctx); err != nil {
		return ImportResult{Error: err.Error()}
	}
	if err := s.writeRaw(ctx, b.Data); err != nil {
		err = fmt.Errorf("failed to import data: %w", err)
		s.warn(err)
		return ImportResult{Error: err.Error()}
	}
	s.logger.Info("data imported", "version", b.Version, "keys", len(b.Data))
	return ImportResult{Success: true}
}

// ClearChatData deletes conversations, messages and UI state, and settings
// too unless keepSettings is set. Backups are kept.
func (s *Store) ClearChatData(ctx context.Context, keepSettings bool) error {
	defer s.written.Reset()
	var errs []error
	for _, key := range DataKeys {
		if key == KeySettings && keepSettings {
			continue
		}
		if err := s.kv.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if !keepSettings && s.secrets != nil {
		if err := s.secrets.SetAPIKey(""); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		err = fmt.Errorf("failed to clear chat data: %w", err)
		s.warn(err)
		return err
	}
	s.logger.Info("chat data cleared", "keep_settings", keepSettings)
	return nil
}

// Usage reports the size of every stored key, backups included.
func (s *Store) Usage(ctx context.Context) (Usage, error) {
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to measure storage: %w", err)
	}
	u := Usage{Keys: make(map[string]int, len(keys))}
	for _, key := range keys {
		v, ok, err := s.kv.Get(ctx, key)
		if err != nil {
			return Usage{}, fmt.Errorf("failed to measure storage: %w", err)
		}
		if !ok {
			continue
		}
		u.Keys[key] = len(key) + len(v)
		u.TotalBytes += len(key) + len(v)
		u.Items++
	}
	return u, nil
}
