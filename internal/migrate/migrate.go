// Package migrate replays the legacy flat-JSON conversation history
// format into the current segmented historystore format, once, on
// first start.
package migrate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nugget/message-agent-host/internal/historystore"
)

// legacyMessage is one entry in a pre-segment conversation file: a flat
// JSON array at "<legacyRoot>/<channelId>/<conversationId>.json".
type legacyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LegacyHistory replays legacyRoot's flat-JSON conversation files into
// store, then renames legacyRoot to "<legacyRoot>.bak". It is a no-op
// if legacyRoot doesn't exist or store already has any conversation
// under it (the "new history root is empty" precondition). Per-file
// errors are counted and logged; they never abort the migration.
func LegacyHistory(legacyRoot string, store *historystore.Store, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(legacyRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat legacy history root %s: %w", legacyRoot, err)
	}
	if !info.IsDir() {
		return nil
	}

	empty, err := newRootIsEmpty(store)
	if err != nil {
		return fmt.Errorf("check new history root: %w", err)
	}
	if !empty {
		logger.Info("new history root is non-empty, skipping legacy migration")
		return nil
	}

	channelDirs, err := os.ReadDir(legacyRoot)
	if err != nil {
		return fmt.Errorf("read legacy history root %s: %w", legacyRoot, err)
	}

	var migrated, failed int
	for _, cd := range channelDirs {
		if !cd.IsDir() {
			continue
		}
		channelID := cd.Name()
		channelPath := filepath.Join(legacyRoot, channelID)
		convFiles, err := os.ReadDir(channelPath)
		if err != nil {
			logger.Warn("read legacy channel dir failed", "channel", channelID, "error", err)
			failed++
			continue
		}
		for _, cf := range convFiles {
			if cf.IsDir() || !strings.HasSuffix(cf.Name(), ".json") {
				continue
			}
			conversationID := strings.TrimSuffix(cf.Name(), ".json")
			path := filepath.Join(channelPath, cf.Name())
			if err := migrateFile(path, channelID, conversationID, store); err != nil {
				logger.Warn("legacy history migration failed for file", "path", path, "error", err)
				failed++
				continue
			}
			migrated++
		}
	}

	logger.Info("legacy history migration complete", "migrated", migrated, "failed", failed)

	backup := legacyRoot + ".bak"
	if err := os.Rename(legacyRoot, backup); err != nil {
		return fmt.Errorf("rename legacy history root to %s: %w", backup, err)
	}
	return nil
}

func newRootIsEmpty(store *historystore.Store) (bool, error) {
	channels, err := store.Channels()
	if err != nil {
		return false, err
	}
	return len(channels) == 0, nil
}

func migrateFile(path, channelID, conversationID string, store *historystore.Store) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	var messages []legacyMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	for _, m := range messages {
		if _, err := store.AppendAt(channelID, conversationID, m.Role, m.Content, historystore.Entry{}, info.ModTime()); err != nil {
			return fmt.Errorf("append migrated entry: %w", err)
		}
	}
	return nil
}
