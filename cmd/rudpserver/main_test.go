package main

import "testing"

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	if !names["serve"] {
		t.Error("expected serve subcommand to be registered")
	}
	if !names["version"] {
		t.Error("expected version subcommand to be registered")
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"version"})
	var buf buffer
	root.SetOut(&buf)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if buf.String() != version+"\n" {
		t.Errorf("got %q, want %q", buf.String(), version+"\n")
	}
}

type buffer struct {
	data []byte
}

func (b *buffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *buffer) String() string { return string(b.data) }
