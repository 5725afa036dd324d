package main

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"mini-ide/internal/config"
)

type configUpdatedEvent struct {
	Config             config.Config `json:"config"`
	Version            uint64        `json:"version"`
	UpdatedAtUnixMilli int64         `json:"updated_at_unix_milli"`
}

// GetConfig returns loaded config.
func (a *App) GetConfig() config.Config {
	return a.getConfigSnapshot()
}

// GetConfigAndFlushWarnings returns loaded config and emits any pending startup warnings.
func (a *App) GetConfigAndFlushWarnings() config.Config {
	a.flushPendingConfigLoadWarnings()
	return a.getConfigSnapshot()
}

func (a *App) flushPendingConfigLoadWarnings() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	if warning := a.consumePendingConfigLoadWarning(); warning != "" {
		a.emitRuntimeEventWithContext(ctx, eventConfigLoadFailed, map[string]string{
			"message": warning,
		})
	}
}

// SaveConfig validates and persists cfg to disk, then updates in-memory config.
// The config:updated event carries the normalized config (with defaults filled).
func (a *App) SaveConfig(cfg config.Config) error {
	previous := a.getConfigSnapshot()
	event, err := a.saveConfigWithLock(cfg)
	if err != nil {
		return err
	}
	a.applyExplorerConfig(previous.Explorer, event.Config.Explorer)
	// Event emission happens outside cfgSaveMu. Concurrent saves are
	// ordered by Version; the page keeps the highest.
	a.emitRuntimeEvent(eventConfigUpdated, event)
	return nil
}

// saveConfigWithLock persists cfg, updates the in-memory snapshot, and bumps event version under cfgSaveMu.
func (a *App) saveConfigWithLock(cfg config.Config) (configUpdatedEvent, error) {
	a.cfgSaveMu.Lock()
	defer a.cfgSaveMu.Unlock()

	normalized, err := config.Save(a.configPath, cfg)
	if err != nil {
		return configUpdatedEvent{}, err
	}
	a.setConfigSnapshot(normalized)
	version := a.configEventVersion.Add(1)

	return configUpdatedEvent{
		Config:             config.Clone(normalized),
		Version:            version,
		UpdatedAtUnixMilli: time.Now().UnixMilli(),
	}, nil
}

// applyExplorerConfig pushes explorer changes into the running workspace.
// New exclude patterns re-list every cached directory; a watch toggle
// starts or stops the watcher.
func (a *App) applyExplorerConfig(before config.ExplorerConfig, after config.ExplorerConfig) {
	excludeChanged := !slices.Equal(before.Exclude, after.Exclude)
	if excludeChanged {
		a.ctrl.SetExclude(after.Exclude)
	}
	if !a.ctrl.IsOpen() {
		return
	}
	if excludeChanged {
		if err := a.ctrl.Refresh(context.Background()); err != nil {
			slog.Warn("[WARN-CONFIG] refresh after exclude change failed", "error", err)
		}
	}
	if before.Watch != after.Watch || before.WatchDebounceMS != after.WatchDebounceMS {
		a.stopWatcher()
		if after.Watch {
			a.startWatcher()
		}
	}
}
