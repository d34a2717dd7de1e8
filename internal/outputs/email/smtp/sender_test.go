package smtp

import (
	"strings"
	"testing"

	"github.com/bakkerme/wanderlust-ai/internal/config"
	"github.com/bakkerme/wanderlust-ai/internal/outputs/email"
)

func TestNew_TLSModeDefaults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		port int
		mode string
		want TLSMode
	}{
		{587, "", TLSModeStartTLS},
		{465, "auto", TLSModeImplicit},
		{1025, "off", TLSModeDisabled},
		{25, "SMTPS", TLSModeImplicit},
	}
	for _, tc := range cases {
		s, err := New(config.SMTPEnvConfig{Host: "smtp.test", Port: tc.port, TLSMode: tc.mode})
		if err != nil {
			t.Fatalf("New(port=%d, mode=%q) error = %v", tc.port, tc.mode, err)
		}
		if s.Mode() != tc.want {
			t.Fatalf("Mode(port=%d, mode=%q) = %q, want %q", tc.port, tc.mode, s.Mode(), tc.want)
		}
	}
}

func TestNew_Invalid(t *testing.T) {
	t.Parallel()

	for _, cfg := range []config.SMTPEnvConfig{
		{Port: 587},
		{Host: "smtp.test"},
		{Host: "smtp.test", Port: 587, TLSMode: "maybe"},
	} {
		if _, err := New(cfg); err == nil {
			t.Fatalf("New(%#v) should fail", cfg)
		}
	}
}

func TestBuild(t *testing.T) {
	t.Parallel()

	s, _ := New(config.SMTPEnvConfig{Host: "smtp.test", Port: 587, From: "trips@wanderlust.test"})
	msg, err := s.build(email.Message{To: "ana@example.com", Subject: "Lisbon", HTML: "<p>hi</p>"})
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if from := msg.GetFromString(); len(from) != 1 || !strings.Contains(from[0], "trips@wanderlust.test") {
		t.Fatalf("From = %v", from)
	}

	noFrom, _ := New(config.SMTPEnvConfig{Host: "smtp.test", Port: 587})
	if _, err := noFrom.build(email.Message{To: "ana@example.com"}); err == nil {
		t.Fatalf("build() without any sender address should fail")
	}
	if _, err := s.build(email.Message{To: "not an address"}); err == nil {
		t.Fatalf("build() with an invalid recipient should fail")
	}
}

func TestIsLocalHost(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"localhost":        true,
		"127.0.0.1":        true,
		"::1":              true,
		"mailpit":          true,
		"smtp.example.com": false,
		"":                 false,
	}
	for host, want := range cases {
		if got := isLocalHost(host); got != want {
			t.Fatalf("isLocalHost(%q) = %v, want %v", host, got, want)
		}
	}
}
