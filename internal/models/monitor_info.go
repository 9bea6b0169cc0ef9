package models

import "time"

// MonitorInfo describes this monitoring session.
type MonitorInfo struct {
	Version         string    `json:"version"`
	Endpoint        string    `json:"endpoint"`
	ContractAddress string    `json:"contract_address"`
	StartTime       time.Time `json:"start_time"`
}

// Uptime returns the duration since monitoring started
func (m *MonitorInfo) Uptime() time.Duration {
	return time.Since(m.StartTime)
}

// NewMonitorInfo captures the monitoring start instant.
func NewMonitorInfo(version, endpoint, contract string) *MonitorInfo {
	return &MonitorInfo{
		Version:         version,
		Endpoint:        endpoint,
		ContractAddress: contract,
		StartTime:       time.Now(),
	}
}
