package reachability

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNewAppliesOptions(t *testing.T) {
	g := New(WithTarget("10.0.0.1"), WithTimeout(5*time.Second))
	if g.target != "10.0.0.1" {
		t.Errorf("target = %q, want 10.0.0.1", g.target)
	}
	if g.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", g.timeout)
	}
}

func TestNewDefaultsToDefaultTarget(t *testing.T) {
	g := New()
	if g.target != DefaultTarget {
		t.Errorf("target = %q, want %q", g.target, DefaultTarget)
	}
}

func TestWarnUnavailableOnceFiresOnlyOnce(t *testing.T) {
	var buf bytes.Buffer
	g := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	g.warnUnavailableOnce(errors.New("permission denied"))
	g.warnUnavailableOnce(errors.New("permission denied"))
	if !g.icmpUnavailable {
		t.Error("icmpUnavailable = false, want true after warnUnavailableOnce")
	}
	if n := strings.Count(buf.String(), "icmp reachability probe unavailable"); n != 1 {
		t.Errorf("warning logged %d times, want 1", n)
	}
}
