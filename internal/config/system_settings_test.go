package config

import (
	"testing"
	"time"
)

func TestGetSystemSettingString_Defaults(t *testing.T) {
	t.Setenv(QUEUE_TYPE, "")
	if got := GetSystemSettingString(QUEUE_TYPE); got != QUEUE_TYPE_DATABASE {
		t.Errorf("expected default queue type %s, got %s", QUEUE_TYPE_DATABASE, got)
	}
	if got := GetSystemSettingString(DATABASE_TYPE); got != "" {
		t.Errorf("database type has no default, got %q", got)
	}
}

func TestGetSystemSettingString_EnvOverrides(t *testing.T) {
	t.Setenv(QUEUE_NAME, "orders")
	if got := GetSystemSettingString(QUEUE_NAME); got != "orders" {
		t.Errorf("expected orders, got %s", got)
	}
}

func TestGetSystemSettingInteger(t *testing.T) {
	t.Setenv(CONSUMER_SIZE, "12")
	if got := GetSystemSettingInteger(CONSUMER_SIZE); got != 12 {
		t.Errorf("expected 12, got %d", got)
	}
	t.Setenv(CONSUMER_SIZE, "lots")
	if got := GetSystemSettingInteger(CONSUMER_SIZE); got != 0 {
		t.Errorf("expected 0 for unparsable value, got %d", got)
	}
}

func TestGetSystemSettingDuration(t *testing.T) {
	t.Setenv(QUEUE_VISIBILITY_TIMEOUT, "")
	if got := GetSystemSettingDuration(QUEUE_VISIBILITY_TIMEOUT); got != 30*time.Second {
		t.Errorf("expected 30s default, got %v", got)
	}
	t.Setenv(REPAIR_AFTER, "not-a-duration")
	if got := GetSystemSettingDuration(REPAIR_AFTER); got != 0 {
		t.Errorf("expected 0 for invalid duration, got %v", got)
	}
}
