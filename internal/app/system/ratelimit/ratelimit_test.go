package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiter_AllowUpToLimit(t *testing.T) {
	l := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("key") {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}
	if l.Allow("key") {
		t.Error("expected attempt over the limit to be blocked")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	if !l.Allow("a") {
		t.Fatal("first attempt for a should be allowed")
	}
	if !l.Allow("b") {
		t.Error("first attempt for b should be allowed despite a being at limit")
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := New(1, time.Minute)
	l.Allow("key")
	if l.Allow("key") {
		t.Fatal("expected blocked at limit")
	}
	l.Reset("key")
	if !l.Allow("key") {
		t.Error("expected allowed after reset")
	}
}

func TestLimiter_WindowExpiry(t *testing.T) {
	l := New(1, 10*time.Millisecond)
	l.Allow("key")
	time.Sleep(20 * time.Millisecond)
	if !l.Allow("key") {
		t.Error("expected allowed after window expired")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{name: "remote addr with port", remoteAddr: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "x-forwarded-for wins", remoteAddr: "10.0.0.1:80", forwarded: "203.0.113.9, 10.0.0.1", want: "203.0.113.9"},
		{name: "x-real-ip fallback", remoteAddr: "10.0.0.1:80", realIP: "203.0.113.7", want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				r.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				r.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoginLimiter_BlocksEmailAcrossIPs(t *testing.T) {
	ll := &LoginLimiter{
		byIP:    New(100, time.Minute),
		byEmail: New(2, time.Minute),
	}
	for i := 0; i < 2; i++ {
		r := httptest.NewRequest("POST", "/login", nil)
		r.RemoteAddr = "192.0.2.1:1000"
		if ok, _ := ll.Check(r, "target@example.com"); !ok {
			t.Fatalf("attempt %d: expected allowed", i+1)
		}
	}
	r := httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = "198.51.100.2:1000" // different IP, same account
	ok, reason := ll.Check(r, "Target@Example.com")
	if ok {
		t.Error("expected per-email block regardless of source IP")
	}
	if reason == "" {
		t.Error("expected a block reason")
	}

	ll.ResetEmail("target@example.com")
	r = httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = "198.51.100.2:1000"
	if ok, _ := ll.Check(r, "target@example.com"); !ok {
		t.Error("expected allowed after ResetEmail")
	}
}
