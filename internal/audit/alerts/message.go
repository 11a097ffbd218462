package alerts

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"starline/internal/audit"
)

func breachMessage(rec *audit.Record) (subject, body string) {
	subject = "[CRITICAL] Potential data breach detected"

	var b strings.Builder
	fmt.Fprintf(&b, "A potential data breach was detected and requires immediate review.\n\n")
	fmt.Fprintf(&b, "Finding:    %s\n", rec.ResourceName)
	fmt.Fprintf(&b, "Category:   %s\n", rec.ResourceType)
	writeContext(&b, rec)
	b.WriteString("\nAn open violation has been created for this finding.\n")
	return subject, b.String()
}

func failedLoginMessage(rec *audit.Record) (subject, body string) {
	subject = "Failed login attempt recorded"

	var b strings.Builder
	b.WriteString("A failed login attempt was recorded.\n\n")
	writeContext(&b, rec)
	fmt.Fprintf(&b, "Client:     %s\n", humanizeUserAgent(rec.UserAgent))
	if rec.ErrorMessage != "" {
		fmt.Fprintf(&b, "Reason:     %s\n", rec.ErrorMessage)
	}
	return subject, b.String()
}

func phiAccessMessage(rec *audit.Record) (subject, body string) {
	subject = "Protected health information accessed"

	var b strings.Builder
	fmt.Fprintf(&b, "A %s operation touched protected health information.\n\n", rec.Action)
	fmt.Fprintf(&b, "Resource:   %s %s\n", rec.ResourceType, rec.ResourceName)
	fmt.Fprintf(&b, "Consent:    %s\n", consentLabel(rec.ConsentVerified))
	writeContext(&b, rec)
	return subject, b.String()
}

func writeContext(b *strings.Builder, rec *audit.Record) {
	if !rec.ActorID.IsNil() {
		fmt.Fprintf(b, "Actor:      %s\n", rec.ActorID)
	}
	if rec.IPAddress != "" {
		fmt.Fprintf(b, "IP address: %s\n", rec.IPAddress)
	}
	fmt.Fprintf(b, "Record:     %s\n", rec.ID)
	if !rec.CreatedAt.IsZero() {
		fmt.Fprintf(b, "Time:       %s\n", rec.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
}

func consentLabel(verified bool) string {
	if verified {
		return "verified"
	}
	return "NOT VERIFIED"
}

// humanizeUserAgent renders a raw User-Agent header as "Browser x.y on OS"
// so alert recipients do not have to decode the header themselves.
func humanizeUserAgent(raw string) string {
	if raw == "" {
		return "unknown client"
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	out := name
	if version != "" {
		out += " " + version
	}
	if os := ua.OS(); os != "" {
		out += " on " + os
	}
	return out
}
