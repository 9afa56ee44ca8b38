package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.String("config", DefaultFile, "")
	f.Int("port", 8080, "")
	f.Duration("reconcile-delay", 300*time.Millisecond, "")
	f.String("store-backend", BackendFile, "")
	f.CountP("verbose", "v", "")
	return f
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Address() != ":8080" {
		t.Errorf("port = %d, address = %q", cfg.Port, cfg.Address())
	}
	if cfg.Reconcile.Delay != 300*time.Millisecond || cfg.Reconcile.MaxWait != 2*time.Second {
		t.Errorf("reconcile = %+v", cfg.Reconcile)
	}
	if cfg.Store.Backend != BackendFile || cfg.Store.Redis.Addr != "localhost:6379" {
		t.Errorf("store = %+v", cfg.Store)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	toml := `
port = 9000
watch = "manifests"

[reconcile]
delay = "1s"
maxwait = "5s"

[store]
backend = "none"
`
	if err := os.WriteFile(filepath.Join(dir, DefaultFile), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("KUBE_PLAYGROUND_PORT", "9100")
	t.Setenv("KUBE_PLAYGROUND_STORE_REDIS_DB", "3")

	f := flags()
	if err := f.Parse([]string{"--reconcile-delay=2s", "-vv"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != 9100 {
		t.Errorf("port = %d, want env override 9100", cfg.Port)
	}
	if cfg.Watch != "manifests" || cfg.Store.Backend != BackendNone {
		t.Errorf("file values lost: watch=%q backend=%q", cfg.Watch, cfg.Store.Backend)
	}
	if cfg.Reconcile.Delay != 2*time.Second {
		t.Errorf("delay = %s, want flag override 2s", cfg.Reconcile.Delay)
	}
	if cfg.Reconcile.MaxWait != 5*time.Second {
		t.Errorf("maxwait = %s", cfg.Reconcile.MaxWait)
	}
	if cfg.Store.Redis.DB != 3 {
		t.Errorf("redis db = %d", cfg.Store.Redis.DB)
	}
	if cfg.VerboseCnt != 2 {
		t.Errorf("verbose = %d", cfg.VerboseCnt)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("backend", func(t *testing.T) {
		t.Setenv("KUBE_PLAYGROUND_STORE_BACKEND", "etcd")
		if _, err := Load(nil); err == nil {
			t.Error("expected an error for an unknown store backend")
		}
	})

	t.Run("maxwait", func(t *testing.T) {
		t.Setenv("KUBE_PLAYGROUND_RECONCILE_MAXWAIT", "100ms")
		if _, err := Load(nil); err == nil {
			t.Error("expected an error for maxwait below delay")
		}
	})

	t.Run("missing explicit file", func(t *testing.T) {
		f := flags()
		if err := f.Parse([]string{"--config=nope.toml"}); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(f); err == nil {
			t.Error("expected an error for a missing --config file")
		}
	})
}
