package logger

import (
	"strings"
	"testing"
)

func TestSanitizeValue(t *testing.T) {
	if got := sanitizeValue("db_password", "hunter2"); got != "[REDACTED]" {
		t.Fatalf("password: got=%v", got)
	}
	if got := sanitizeValue("db_dsn", "postgres://app:pw@db:5432/agg?sslmode=disable"); got != "postgres://***@db:5432/agg?sslmode=disable" {
		t.Fatalf("dsn: got=%v", got)
	}
	if got := sanitizeValue("dsn", "host=db user=app password=pw"); got != "[REDACTED]" {
		t.Fatalf("keyword dsn: got=%v", got)
	}
	if got := sanitizeValue("dsn", "file:agg.db"); got != "file:agg.db" {
		t.Fatalf("sqlite dsn: got=%v", got)
	}
	got, _ := sanitizeValue("owner_id", "u-1").(string)
	if !strings.HasPrefix(got, "hash:") || len(got) != len("hash:")+12 {
		t.Fatalf("owner hash: got=%v", got)
	}
	if got := sanitizeValue("dataset_id", "d-1"); got != "d-1" {
		t.Fatalf("plain: got=%v", got)
	}
	nested, _ := sanitizeValue("meta", map[string]interface{}{"api_key": "k", "rows": 3}).(map[string]interface{})
	if nested["api_key"] != "[REDACTED]" || nested["rows"] != 3 {
		t.Fatalf("nested: got=%v", nested)
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"token", "abc", "dangling"})
	if len(out) != 3 || out[1] != "[REDACTED]" || out[2] != "dangling" {
		t.Fatalf("sanitizeKVs: got=%v", out)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"dev", "prod"} {
		log, err := New(mode)
		if err != nil {
			t.Fatalf("New(%s): %v", mode, err)
		}
		log.With("component", "test").Debug("hello", "dataset_id", "d-1")
	}
	Nop().Info("discarded")
}
