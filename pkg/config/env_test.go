package config

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestGetEnvWithDefault(t *testing.T) {
	t.Setenv("FOO", "")
	if got := GetEnv("FOO", "bar"); got != "bar" {
		t.Fatalf("expected bar, got %s", got)
	}
	t.Setenv("FOO", "baz")
	if got := GetEnv("FOO", "bar"); got != "baz" {
		t.Fatalf("expected baz, got %s", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("NUM", "")
	if got := GetEnvInt("NUM", 42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("NUM", "100")
	if got := GetEnvInt("NUM", 42); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	t.Setenv("NUM", "notint")
	if got := GetEnvInt("NUM", 7); got != 7 {
		t.Fatalf("expected 7 on parse error, got %d", got)
	}
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("RATIO", "0.6")
	if got := GetEnvFloat("RATIO", 0.5); got != 0.6 {
		t.Fatalf("expected 0.6, got %v", got)
	}
	t.Setenv("RATIO", "half")
	if got := GetEnvFloat("RATIO", 0.5); got != 0.5 {
		t.Fatalf("expected default on parse error, got %v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "")
	if got := GetEnvBool("FLAG", true); got != true {
		t.Fatalf("expected true default, got %v", got)
	}
	t.Setenv("FLAG", "false")
	if got := GetEnvBool("FLAG", true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TTL", "15m")
	if got := GetEnvDuration("TTL", time.Minute); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}
	t.Setenv("TTL", "-5s")
	if got := GetEnvDuration("TTL", time.Minute); got != time.Minute {
		t.Fatalf("expected default for negative duration, got %s", got)
	}
	t.Setenv("TTL", "soon")
	if got := GetEnvDuration("TTL", time.Minute); got != time.Minute {
		t.Fatalf("expected default on parse error, got %s", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	got := GetEnvList("BROKERS")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected list: %#v", got)
	}
	t.Setenv("BROKERS", "")
	if got := GetEnvList("BROKERS"); got != nil {
		t.Fatalf("expected nil for empty value, got %#v", got)
	}
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if GetLogLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level")
	}
	t.Setenv("LOG_LEVEL", "warn")
	if GetLogLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level")
	}
	t.Setenv("LOG_LEVEL", "")
	if GetLogLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level by default")
	}
}

func TestLoadEnv_NoFile(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	LoadEnv(logrus.New())
	LoadEnv(nil)
}
