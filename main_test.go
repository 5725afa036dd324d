package main

import (
	"path/filepath"
	"testing"

	"mini-ide/internal/ipc"
)

func TestLaunchWorkspaceArg(t *testing.T) {
	cwd, err := filepath.Abs(".")
	if err != nil {
		t.Fatal(err)
	}
	abs := filepath.Join(t.TempDir(), "project")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no arguments", args: nil, want: ""},
		{name: "flags only", args: []string{"-debug", "--verbose"}, want: ""},
		{name: "blank argument", args: []string{"  "}, want: ""},
		{name: "absolute path", args: []string{abs}, want: abs},
		{name: "relative path made absolute", args: []string{"project"}, want: filepath.Join(cwd, "project")},
		{name: "first positional wins", args: []string{"-x", abs, "other"}, want: abs},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := launchWorkspaceArg(tt.args); got != tt.want {
				t.Fatalf("launchWorkspaceArg(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestForwardedLaunchRequest(t *testing.T) {
	if got := forwardedLaunchRequest(""); got != (ipc.Request{Action: ipc.ActionActivate}) {
		t.Fatalf("forwardedLaunchRequest(\"\") = %+v, want activate", got)
	}
	want := ipc.Request{Action: ipc.ActionOpenWorkspace, Workspace: "/w/proj"}
	if got := forwardedLaunchRequest("/w/proj"); got != want {
		t.Fatalf("forwardedLaunchRequest() = %+v, want %+v", got, want)
	}
	if err := want.Validate(); err != nil {
		t.Fatalf("forwarded request should validate: %v", err)
	}
}
