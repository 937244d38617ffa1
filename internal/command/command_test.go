package command

import (
	"bytes"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	for _, want := range []string{"mvload 1.2.3", "catalog schema: 1", "filmliste-v3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output = %q, want %q", out, want)
		}
	}

	out, err = execute(t, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if out != "mvload version 1.2.3\n" {
		t.Errorf("--version = %q", out)
	}
}

func TestSubcommands(t *testing.T) {
	root := NewRootCmd("dev")
	for _, name := range []string{"run", "serve", "migrate", "version"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("Find(%q) = %v, %v", name, cmd, err)
		}
	}
}

// Flag errors are reported before any configuration is read.
func TestRun_FlagValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"epoch too large", []string{"run", "--epoch", "99999"}, "invalid --epoch"},
		{"epoch negative", []string{"run", "--epoch", "-1"}, "invalid --epoch"},
		{"missing file", []string{"run", "--file", "/nonexistent/list.xz"}, "invalid --file"},
		{"file and download only", []string{"run", "--file", "x", "--download-only"}, "none of the others"},
		{"stray argument", []string{"run", "now"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRunRequest(t *testing.T) {
	root := NewRootCmd("dev")
	cmd, _, err := root.Find([]string{"run"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.ParseFlags([]string{"--diff", "--force", "--epoch", "30"}); err != nil {
		t.Fatal(err)
	}

	req, err := runRequest(cmd)
	if err != nil {
		t.Fatalf("runRequest: %v", err)
	}
	if !req.Diff || !req.Force || req.DownloadOnly || req.File != "" {
		t.Errorf("request = %+v", req)
	}
	if req.MaxAgeDays == nil || *req.MaxAgeDays != 30 {
		t.Errorf("MaxAgeDays = %v, want 30", req.MaxAgeDays)
	}
}

func TestMigrate_BadDirection(t *testing.T) {
	_, err := execute(t, "migrate", "sideways")
	if err == nil || !strings.Contains(err.Error(), "sideways") {
		t.Errorf("error = %v", err)
	}
}
