package notify

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/regscan/internal/config"
	"github.com/hazyhaar/regscan/internal/lookup"
)

func TestServiceURL(t *testing.T) {
	n := &Notifier{Mail: config.MailConfig{
		Host:        "smtp.example.com",
		Port:        465,
		Username:    "ops@example.com",
		Password:    "p@ssw0rd",
		FromAddress: "ops@example.com",
		FromName:    "regscan",
		To:          "alerts@example.com",
		UseSSL:      true,
	}}

	raw := n.serviceURL()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("unparseable service url %q: %v", raw, err)
	}
	if u.Scheme != "smtp" || u.Host != "smtp.example.com:465" {
		t.Errorf("url = %q", raw)
	}
	if pw, _ := u.User.Password(); pw != "p@ssw0rd" {
		t.Errorf("password round-trip = %q", pw)
	}
	q := u.Query()
	if q.Get("to") != "alerts@example.com" || q.Get("encryption") != "ImplicitTLS" {
		t.Errorf("query = %v", q)
	}
}

func TestServiceURLStartTLS(t *testing.T) {
	n := &Notifier{Mail: config.MailConfig{Host: "h", Port: 587}}
	if !strings.Contains(n.serviceURL(), "encryption=ExplicitTLS") {
		t.Error("non-SSL config should request STARTTLS")
	}
}

func TestFormatDigest(t *testing.T) {
	start := time.Date(2026, 8, 31, 6, 0, 0, 0, time.UTC)
	s := Summary{
		RunID:     "run-1",
		Start:     start,
		End:       start.Add(90 * time.Second),
		Total:     3,
		Succeeded: 2,
		Failed:    1,
		FailedByKind: map[lookup.Kind]int{
			lookup.KindMalformedInput: 1,
		},
	}

	msg := formatDigest(s)
	for _, want := range []string{"run-1", "1m30s", "3 total", "2 resolved", "1 failed", "malformed_input: 1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("digest %q missing %q", msg, want)
		}
	}
}

func TestSendDigestIncompleteConfigIsNoop(t *testing.T) {
	n := &Notifier{Mail: config.MailConfig{Host: "h"}}
	// Must not panic or attempt network delivery.
	n.SendDigest(Summary{RunID: "x"})
}
