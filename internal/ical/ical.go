// Package ical renders session invites as minimal iCalendar (RFC 5545)
// payloads suitable for email attachment. The encoder is stateless and
// deterministic: identical input produces identical bytes. Event identity
// is carried by the UID and the revision by SEQUENCE, so calendar clients
// replace an earlier invite instead of duplicating it.
package ical

import (
	"fmt"
	"strings"
	"time"
)

type EventStatus string

const (
	StatusConfirmed EventStatus = "CONFIRMED"
	StatusCancelled EventStatus = "CANCELLED"
	StatusTentative EventStatus = "TENTATIVE"
)

type Participant struct {
	Name  string
	Email string
}

// Invite is the value object the encoder consumes. Stamp must come from
// the session's own updated_at so encoding never reads the wall clock.
type Invite struct {
	UID       string
	Sequence  int
	Status    EventStatus
	Summary   string
	Location  string
	StartAt   time.Time
	EndAt     time.Time
	Stamp     time.Time
	Organizer Participant
	Attendee  Participant
}

const prodID = "-//scheduling-service//session invites//EN"

// Encode renders inv as an iCalendar document. Cancelled invites use
// METHOD:CANCEL so clients remove the event; everything else is a REQUEST.
func Encode(inv Invite) []byte {
	method := "REQUEST"
	if inv.Status == StatusCancelled {
		method = "CANCEL"
	}

	var b strings.Builder
	writeLine(&b, "BEGIN:VCALENDAR")
	writeLine(&b, "VERSION:2.0")
	writeLine(&b, "PRODID:"+prodID)
	writeLine(&b, "METHOD:"+method)
	writeLine(&b, "BEGIN:VEVENT")
	writeLine(&b, "UID:"+escapeText(inv.UID))
	writeLine(&b, fmt.Sprintf("SEQUENCE:%d", inv.Sequence))
	writeLine(&b, "STATUS:"+string(inv.Status))
	writeLine(&b, "DTSTAMP:"+formatUTC(inv.Stamp))
	writeLine(&b, "DTSTART:"+formatUTC(inv.StartAt))
	writeLine(&b, "DTEND:"+formatUTC(inv.EndAt))
	writeLine(&b, "SUMMARY:"+escapeText(inv.Summary))
	if inv.Location != "" {
		writeLine(&b, "LOCATION:"+escapeText(inv.Location))
	}
	writeLine(&b, fmt.Sprintf("ORGANIZER;CN=%s:mailto:%s", escapeText(inv.Organizer.Name), inv.Organizer.Email))
	writeLine(&b, fmt.Sprintf("ATTENDEE;CN=%s;RSVP=TRUE:mailto:%s", escapeText(inv.Attendee.Name), inv.Attendee.Email))
	writeLine(&b, "END:VEVENT")
	writeLine(&b, "END:VCALENDAR")

	return []byte(b.String())
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeText escapes TEXT values per RFC 5545 §3.3.11.
func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

// writeLine folds content lines longer than 75 octets (§3.1) and
// terminates them with CRLF.
func writeLine(b *strings.Builder, line string) {
	const limit = 75
	for len(line) > limit {
		cut := limit
		// never split inside a UTF-8 sequence
		for cut > 0 && line[cut]&0xC0 == 0x80 {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
	}
	b.WriteString(line)
	b.WriteString("\r\n")
}
