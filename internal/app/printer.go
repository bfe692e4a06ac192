package app

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"closedgroups/internal/crypto"
	"closedgroups/internal/domain"
)

// Printer writes received messages and group events as lines of text.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer { return &Printer{w: w} }

// Deliver prints a group text message.
func (p *Printer) Deliver(msg domain.GroupMessage) {
	ts := time.UnixMilli(msg.Timestamp).Format(time.DateTime)
	p.printf("[%s] %s <%s> %s\n", ts, crypto.Fingerprint(msg.Group),
		crypto.Fingerprint(msg.Sender), msg.Text)
}

// Record prints a group event.
func (p *Printer) Record(ev domain.InfoEvent) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %q: %s by %s", ev.Time.Format(time.DateTime),
		crypto.Fingerprint(ev.Group), ev.Name, ev.Kind, crypto.Fingerprint(ev.Actor))
	if len(ev.Members) > 0 {
		b.WriteString(":")
		for _, m := range ev.Members {
			b.WriteString(" ")
			b.WriteString(crypto.Fingerprint(m).String())
		}
	}
	b.WriteString("\n")
	p.printf("%s", b.String())
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

var (
	_ domain.MessageSink = (*Printer)(nil)
	_ domain.EventSink   = (*Printer)(nil)
)
