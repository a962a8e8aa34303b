package main

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		line   string
		kind   commandKind
		source string
	}{
		{"camera", cmdStart, "camera"},
		{"  FILE ", cmdStart, "file"},
		{"start screen", cmdStart, "screen"},
		{"stop", cmdStop, ""},
		{"record", cmdRecord, ""},
		{"stop-record", cmdStopRecord, ""},
		{"status", cmdStatus, ""},
		{"quit", cmdQuit, ""},
		{"exit", cmdQuit, ""},
		{"help", cmdHelp, ""},
	}
	for _, tc := range cases {
		cmd, ok, err := parseCommand(tc.line)
		if err != nil || !ok {
			t.Errorf("parseCommand(%q): ok=%v err=%v", tc.line, ok, err)
			continue
		}
		if cmd.kind != tc.kind || cmd.source != tc.source {
			t.Errorf("parseCommand(%q) = %+v, want kind %d source %q", tc.line, cmd, tc.kind, tc.source)
		}
	}
}

func TestParseCommand_BlankLineIgnored(t *testing.T) {
	if _, ok, err := parseCommand("   "); ok || err != nil {
		t.Errorf("expected blank line ignored, got ok=%v err=%v", ok, err)
	}
}

func TestParseCommand_Errors(t *testing.T) {
	if _, _, err := parseCommand("dance"); !errors.Is(err, errUnknownCommand) {
		t.Errorf("expected unknown command error, got %v", err)
	}
	if _, ok, err := parseCommand("start"); ok || err == nil {
		t.Error("expected usage error for start without source")
	}
}
