// internal/models/monitor_info_test.go
package models

import (
	"testing"
	"time"
)

func TestNewMonitorInfo(t *testing.T) {
	info := NewMonitorInfo("v1.0.0", "http://127.0.0.1:8545", "0x5FbDB2315678afecb367f032d93F642f64180aa3")

	if info == nil {
		t.Fatal("NewMonitorInfo returned nil")
	}
	if info.Version != "v1.0.0" {
		t.Errorf("Version = %v, want v1.0.0", info.Version)
	}
	if info.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}
}

func TestMonitorInfo_Uptime(t *testing.T) {
	info := &MonitorInfo{StartTime: time.Now().Add(-1 * time.Hour)}

	uptime := info.Uptime()
	if uptime < 59*time.Minute || uptime > 61*time.Minute {
		t.Errorf("Uptime = %v, expected approximately 1 hour", uptime)
	}
}
