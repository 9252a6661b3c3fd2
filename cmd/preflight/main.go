// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/hamed0406/pingwatch/internal/config"
	"github.com/hamed0406/pingwatch/internal/registry"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.FromEnv()
	if err != nil {
		fail(err.Error())
		os.Exit(1)
	}
	ok("environment parsed; ADDR=" + cfg.Addr)

	settings, targets, err := registry.New(cfg.TargetsFile).Load()
	if err != nil {
		fail(err.Error())
	} else {
		ok(fmt.Sprintf("%s: %d targets, poll every %s", cfg.TargetsFile, len(targets), settings.PollInterval))
	}

	if p, err := exec.LookPath("ping"); err != nil {
		fail("ping binary not found in PATH; every probe would fail")
	} else {
		ok("ping found at " + p)
	}

	switch cfg.StateBackend {
	case "postgres":
		ok("state backend postgres")
	case "memory":
		warn("STATE_BACKEND=memory; state and subscribers are lost on restart")
	default:
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			fail("STATE_DIR not writable: " + err.Error())
		} else {
			ok("state backend " + cfg.StateBackend + " in " + cfg.StateDir)
		}
	}

	if cfg.TelegramToken == "" && cfg.SlackWebhookURL == "" {
		warn("no TELEGRAM_BOT_TOKEN or SLACK_WEBHOOK_URL; alerts will not be delivered")
	} else {
		ok("notification channel configured")
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS empty; reload and purge are open to anyone who can reach ADDR")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys; read routes are unauthenticated")
	}
	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty; CORS allows any origin")
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
