package utils

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 5 * time.Second},
		{"2s", 2 * time.Second},
		{" 1m30s ", 90 * time.Second},
		{"0s", 0},
		{"soon", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in, 5*time.Second); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:41000"
	if got := GetClientIP(r); got != "10.0.0.5" {
		t.Errorf("remote addr: got %q", got)
	}

	r.RemoteAddr = "[::1]:41000"
	if got := GetClientIP(r); got != "::1" {
		t.Errorf("ipv6 remote addr: got %q", got)
	}

	r.Header.Set("X-Real-IP", "192.0.2.7")
	if got := GetClientIP(r); got != "192.0.2.7" {
		t.Errorf("X-Real-IP: got %q", got)
	}

	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	if got := GetClientIP(r); got != "198.51.100.1" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := FormatMB(100); got != "100.0 MiB" {
		t.Errorf("FormatMB(100) = %q", got)
	}
}
