package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.sql")
	if err := os.WriteFile(path, []byte("SELECT 1;"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		script  string
		args    []string
		want    string
		wantErr bool
	}{
		{"inline", "CREATE TABLE t (a INT);", nil, "CREATE TABLE t (a INT);", false},
		{"file", "", []string{path}, "SELECT 1;", false},
		{"both", "SELECT 1;", []string{path}, "", true},
		{"missing file", "", []string{filepath.Join(t.TempDir(), "nope.sql")}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readScript(tt.script, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("readScript() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("readScript() = %q, want %q", got, tt.want)
			}
		})
	}
}
