package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"mini-ide/internal/workspace"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// closeDecision is the answer to the save-or-discard prompt.
type closeDecision int

const (
	closeCancel closeDecision = iota
	closeSave
	closeDiscard
)

const (
	buttonSave     = "Save"
	buttonDontSave = "Don't Save"
	buttonCancel   = "Cancel"
)

// OpenDocument opens path, or activates it when it is already open.
func (a *App) OpenDocument(path string) (workspace.DocumentView, error) {
	if err := a.ctrl.Open(a.operationContext(), path); err != nil {
		return workspace.DocumentView{}, a.reportError("open", path, err)
	}
	doc, _ := a.ctrl.Document(path)
	return doc, nil
}

// EditDocument replaces the buffer of path with text.
func (a *App) EditDocument(path string, text string) error {
	return a.reportError("edit", path, a.ctrl.Edit(path, text))
}

// SaveDocument writes path, or the active document when path is empty.
func (a *App) SaveDocument(path string) error {
	return a.reportError("save", path, a.ctrl.Save(a.operationContext(), path))
}

// SwitchDocument stores liveBuffer into the active document and activates
// path.
func (a *App) SwitchDocument(path string, liveBuffer string) error {
	return a.reportError("switch", path, a.ctrl.SwitchActive(path, liveBuffer))
}

// GetSession returns the tab bar and active editor projection.
func (a *App) GetSession() workspace.SessionView {
	return a.ctrl.SessionView()
}

// DiscardAndCloseDocument closes path without saving.
func (a *App) DiscardAndCloseDocument(path string) bool {
	return a.ctrl.Close(path)
}

// CloseDocument closes path. A dirty document is saved or discarded as the
// user decides when editor.confirm_close_dirty is on; otherwise edits are
// discarded. It reports whether the document was closed: a canceled prompt
// or a failed save keeps it open.
func (a *App) CloseDocument(path string) (bool, error) {
	doc, ok := a.ctrl.Document(path)
	if !ok {
		return false, nil
	}
	if !doc.Dirty || !a.getConfigSnapshot().Editor.ConfirmCloseDirty {
		return a.ctrl.Close(doc.Path), nil
	}

	decision, err := a.askSaveBeforeClose(doc)
	if err != nil {
		return false, err
	}
	switch decision {
	case closeSave:
		if err := a.ctrl.Save(a.operationContext(), doc.Path); err != nil {
			return false, a.reportError("save", doc.Path, err)
		}
	case closeDiscard:
	default:
		slog.Debug("[DEBUG-WORKSPACE] close canceled", "path", doc.Path)
		return false, nil
	}
	return a.ctrl.Close(doc.Path), nil
}

// askSaveBeforeClose shows the Save / Don't Save / Cancel prompt. Platforms
// that only offer Yes / No / Cancel map to the same decisions.
func (a *App) askSaveBeforeClose(doc workspace.DocumentView) (closeDecision, error) {
	ctx, err := a.requireRuntimeContext()
	if err != nil {
		return closeCancel, err
	}
	answer, err := runtimeMessageDialogFn(ctx, runtime.MessageDialogOptions{
		Type:          runtime.QuestionDialog,
		Title:         "Unsaved Changes",
		Message:       fmt.Sprintf("Do you want to save the changes you made to %s?", filepath.Base(doc.Path)),
		Buttons:       []string{buttonSave, buttonDontSave, buttonCancel},
		DefaultButton: buttonSave,
		CancelButton:  buttonCancel,
	})
	if err != nil {
		return closeCancel, fmt.Errorf("save prompt failed: %w", err)
	}
	return parseCloseDecision(answer), nil
}

func parseCloseDecision(answer string) closeDecision {
	switch answer {
	case buttonSave, "Yes":
		return closeSave
	case buttonDontSave, "No":
		return closeDiscard
	default:
		return closeCancel
	}
}
