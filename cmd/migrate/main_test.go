package main

import (
	"strings"
	"testing"
)

func TestFileCommandsRunWithoutConfig(t *testing.T) {
	dir := t.TempDir()

	if _, err := fileCommands["create"](options{dir: dir}); err == nil {
		t.Fatal("expected create without a name to fail")
	}
	out, err := fileCommands["create"](options{dir: dir, name: "add reservation index"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(out, "_add_reservation_index.sql") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = fileCommands["validate"](options{dir: dir})
	if err != nil || out != "migration validation passed" {
		t.Fatalf("validate: %q %v", out, err)
	}
}

func TestCommandTablesDoNotOverlap(t *testing.T) {
	for name := range fileCommands {
		if _, ok := dbCommands[name]; ok {
			t.Fatalf("command %q registered twice", name)
		}
	}
	for _, name := range []string{"up", "down", "status", "version"} {
		if _, ok := dbCommands[name]; !ok {
			t.Fatalf("missing database command %q", name)
		}
	}
}
