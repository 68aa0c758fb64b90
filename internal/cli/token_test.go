package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/auth"
)

func TestTokenCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("auth:\n  secret: cli-secret\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", path, "--user-id", "7", "--username", "carol"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	claims, err := auth.NewJWTService("cli-secret", time.Hour).Validate(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("validate minted token: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "carol" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenCommandRequiresSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: \"8080\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("JWT_SECRET", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--config", path, "--user-id", "7"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error without an auth secret")
	}
}
