package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := RemotesConfig{
		Active: "prod",
		Remotes: map[string]Remote{
			"prod": {
				API:     "https://repo.example.org/server/api",
				Server:  "https://discovery.example.org",
				Token:   "tok_abc",
				NATSURL: "nats://prod:4222",
			},
			"local": {API: "http://localhost:8081/server/api"},
		},
	}
	if err := saveRemotesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" {
		t.Errorf("Active = %q, want %q", got.Active, "prod")
	}
	prod := got.Remotes["prod"]
	if prod.API != "https://repo.example.org/server/api" || prod.Server != "https://discovery.example.org" ||
		prod.Token != "tok_abc" || prod.NATSURL != "nats://prod:4222" {
		t.Errorf("prod remote = %+v, wrong values", prod)
	}
	if got.Remotes["local"].Server != "" {
		t.Errorf("local remote = %+v, want no server", got.Remotes["local"])
	}
}

func TestLoadRemotesConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || len(cfg.Remotes) != 0 {
		t.Errorf("expected empty config, got %+v", cfg)
	}
	if cfg.Remotes == nil {
		t.Error("Remotes map must not be nil after load")
	}
}

func TestSaveRemotesConfig_Permissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := saveRemotesConfig(RemotesConfig{Remotes: map[string]Remote{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	path, _ := remoteConfigPath()
	check := func(p string, want os.FileMode) {
		t.Helper()
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
	check(path, 0o600)
	check(filepath.Dir(path), 0o700)
}

func TestRemoteLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	mustRun := func(fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	remoteUseCmd.SetOut(&buf)
	remoteRemoveCmd.SetOut(&buf)

	api := "http://localhost:8081/server/api"
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", api}) })
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", api}) }) // upsert
	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"local"}) })

	cfg, _ := loadRemotesConfig()
	if cfg.Active != "local" {
		t.Fatalf("Active = %q, want %q", cfg.Active, "local")
	}
	if len(cfg.Remotes) != 1 {
		t.Fatalf("remotes = %d, want 1 after upsert", len(cfg.Remotes))
	}

	buf.Reset()
	remoteListCmd.SetOut(&buf)
	mustRun(func() error { return remoteListCmd.RunE(remoteListCmd, nil) })
	if !strings.Contains(buf.String(), "* local") {
		t.Errorf("list missing active marker; got:\n%s", buf.String())
	}

	buf.Reset()
	remoteShowCmd.SetOut(&buf)
	mustRun(func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) })
	out := buf.String()
	if !strings.Contains(out, "local") || !strings.Contains(out, api) || !strings.Contains(out, "(active)") {
		t.Errorf("show missing expected content; got:\n%s", out)
	}

	mustRun(func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"local"}) })
	cfg, _ = loadRemotesConfig()
	if cfg.Active != "" {
		t.Errorf("Active = %q after remove, want empty", cfg.Active)
	}
	if _, ok := cfg.Remotes["local"]; ok {
		t.Error("remote still present after remove")
	}
}

func TestRemoteErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := remoteUseCmd.RunE(remoteUseCmd, []string{"ghost"}); err == nil {
		t.Error("use of unknown remote: expected error")
	}
	if err := remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"ghost"}); err == nil {
		t.Error("remove of unknown remote: expected error")
	}
	if err := remoteShowCmd.RunE(remoteShowCmd, nil); err == nil {
		t.Error("show without active remote: expected error")
	}
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "short"},
		{"12345678", "12345678"},
		{"123456789abc", "12345678****"},
	}
	for _, tt := range tests {
		if got := maskToken(tt.in); got != tt.want {
			t.Errorf("maskToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckRemoteURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"", false},
		{"http://localhost:8081/server/api", false},
		{"nats://127.0.0.1:4222", false},
		{"localhost:8081", true},
		{"/server/api", true},
	}
	for _, tt := range tests {
		if err := checkRemoteURL(tt.raw); (err != nil) != tt.wantErr {
			t.Errorf("checkRemoteURL(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}

func TestRemoteAdd_RejectsRelativeAPI(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"bad", "/server/api"}); err == nil {
		t.Fatal("expected error for relative api url")
	}
	cfg, _ := loadRemotesConfig()
	if len(cfg.Remotes) != 0 {
		t.Errorf("remotes = %v, want none saved", cfg.Remotes)
	}
}
