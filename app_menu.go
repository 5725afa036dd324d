package main

import (
	"context"
	"log/slog"

	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
)

// Menu events handled by the page, which owns the live editor buffer and
// the name prompts.
const (
	eventMenuNewFile     = "menu:new-file"
	eventMenuNewFolder   = "menu:new-folder"
	eventMenuCloseEditor = "menu:close-editor"
	eventMenuSave        = "menu:save"
)

const noRecentLabel = "No Recent Folders"

// buildMenu returns the application menu. Open Recent reflects the recent
// store at the time of the call.
func (a *App) buildMenu() *menu.Menu {
	appMenu := menu.NewMenu()

	fileMenu := appMenu.AddSubmenu("File")
	fileMenu.AddText("Open Folder...", keys.CmdOrCtrl("o"), func(*menu.CallbackData) {
		a.runMenuAction("menu-open-folder", func() {
			if _, err := a.OpenFolder(); err != nil {
				slog.Debug("[DEBUG-MENU] open folder failed", "error", err)
			}
		})
	})
	a.addRecentSubmenu(fileMenu.AddSubmenu("Open Recent"))
	fileMenu.AddText("Open Sample Workspace", nil, func(*menu.CallbackData) {
		a.runMenuAction("menu-sample-workspace", func() {
			if _, err := a.CreateSampleWorkspace(); err != nil {
				slog.Debug("[DEBUG-MENU] sample workspace failed", "error", err)
			}
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("New File", keys.CmdOrCtrl("n"), func(*menu.CallbackData) {
		a.emitRuntimeEvent(eventMenuNewFile, nil)
	})
	fileMenu.AddText("New Folder", nil, func(*menu.CallbackData) {
		a.emitRuntimeEvent(eventMenuNewFolder, nil)
	})
	fileMenu.AddText("Save", keys.CmdOrCtrl("s"), func(*menu.CallbackData) {
		a.emitRuntimeEvent(eventMenuSave, nil)
	})
	fileMenu.AddText("Close Editor", keys.CmdOrCtrl("w"), func(*menu.CallbackData) {
		a.emitRuntimeEvent(eventMenuCloseEditor, nil)
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Refresh Explorer", nil, func(*menu.CallbackData) {
		a.runMenuAction("menu-refresh", func() {
			_ = a.RefreshExplorer()
		})
	})
	fileMenu.AddText("Close Folder", nil, func(*menu.CallbackData) {
		a.runMenuAction("menu-close-folder", func() {
			_ = a.CloseWorkspace()
		})
	})
	fileMenu.AddSeparator()
	fileMenu.AddText("Quit", keys.CmdOrCtrl("q"), func(*menu.CallbackData) {
		if ctx := a.runtimeContext(); ctx != nil {
			runtimeQuitFn(ctx)
		}
	})

	appMenu.Append(menu.EditMenu())
	return appMenu
}

func (a *App) addRecentSubmenu(recentMenu *menu.Menu) {
	store, err := a.requireRecent()
	if err != nil {
		recentMenu.AddText(noRecentLabel, nil, nil).Disabled = true
		return
	}
	workspaces, err := store.List(context.Background())
	if err != nil {
		slog.Warn("[WARN-MENU] recent list unavailable", "error", err)
	}
	if len(workspaces) == 0 {
		recentMenu.AddText(noRecentLabel, nil, nil).Disabled = true
		return
	}
	for _, ws := range workspaces {
		root := ws.Root
		recentMenu.AddText(root, nil, func(*menu.CallbackData) {
			a.runMenuAction("menu-open-recent", func() {
				_ = a.OpenWorkspace(root)
			})
		})
	}
}

// runMenuAction moves blocking work off the menu callback.
func (a *App) runMenuAction(name string, fn func()) {
	if a.workers == nil {
		return
	}
	a.workers.Go(name, func(context.Context) { fn() })
}

// refreshApplicationMenu rebuilds the menu so Open Recent is current.
func (a *App) refreshApplicationMenu() {
	ctx := a.runtimeContext()
	if ctx == nil {
		return
	}
	runtimeMenuSetApplicationMenuFn(ctx, a.buildMenu())
	runtimeMenuUpdateApplicationMenuFn(ctx)
}
