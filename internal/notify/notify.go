// Package notify delivers the end-of-run digest. Delivery is
// best-effort: every failure ends in a log line, never in a run error.
package notify

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/hazyhaar/regscan/internal/config"
	"github.com/hazyhaar/regscan/internal/lookup"
)

// Summary is the digest payload: one aggregate per run.
type Summary struct {
	RunID        string
	Start        time.Time
	End          time.Time
	Total        int
	Succeeded    int
	Failed       int
	FailedByKind map[lookup.Kind]int
}

// Notifier sends the digest over the configured mail transport.
type Notifier struct {
	Mail   config.MailConfig
	Logger *slog.Logger
}

// SendDigest formats and delivers the run summary. Incomplete mail
// configuration skips delivery with a warning, matching headless batch
// deployments that only use the audit files.
func (n *Notifier) SendDigest(s Summary) {
	log := n.Logger
	if log == nil {
		log = slog.Default()
	}

	if !n.Mail.Complete() {
		log.Warn("notify: mail settings incomplete, skipping digest")
		return
	}

	sender, err := shoutrrr.CreateSender(n.serviceURL())
	if err != nil {
		log.Error("notify: create sender", "error", err)
		return
	}

	params := types.Params{"subject": fmt.Sprintf("regscan run %s", s.RunID)}
	for _, serr := range sender.Send(formatDigest(s), &params) {
		if serr != nil {
			log.Error("notify: digest delivery failed", "error", serr)
			return
		}
	}
	log.Info("notify: digest sent", "to", n.Mail.To)
}

// serviceURL renders the shoutrrr SMTP service URL from the mail
// environment settings.
func (n *Notifier) serviceURL() string {
	enc := "ExplicitTLS"
	if n.Mail.UseSSL {
		enc = "ImplicitTLS"
	}

	q := url.Values{}
	q.Set("from", n.Mail.FromAddress)
	q.Set("fromname", n.Mail.FromName)
	q.Set("to", n.Mail.To)
	q.Set("encryption", enc)

	return fmt.Sprintf("smtp://%s:%s@%s:%d/?%s",
		url.QueryEscape(n.Mail.Username), url.QueryEscape(n.Mail.Password),
		n.Mail.Host, n.Mail.Port, q.Encode())
}

func formatDigest(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s finished in %s.\n", s.RunID, s.End.Sub(s.Start).Round(time.Second))
	fmt.Fprintf(&b, "Identifiers: %d total, %d resolved, %d failed.\n", s.Total, s.Succeeded, s.Failed)

	if len(s.FailedByKind) > 0 {
		kinds := make([]string, 0, len(s.FailedByKind))
		for k := range s.FailedByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		b.WriteString("Failures by kind:\n")
		for _, k := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", k, s.FailedByKind[lookup.Kind(k)])
		}
	}
	return b.String()
}
