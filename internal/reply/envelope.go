package reply

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/httpbridge/internal/config"
)

// EnvelopeFormatOptions controls the header prepended to inbound text.
type EnvelopeFormatOptions struct {
	Location         *time.Location
	IncludeTimestamp bool
	IncludeElapsed   bool
}

// EnvelopeParams is the input to FormatAgentEnvelope.
type EnvelopeParams struct {
	Channel           string
	From              string
	Timestamp         time.Time
	PreviousTimestamp time.Time // zero when the session has no prior message
	Envelope          EnvelopeFormatOptions
	Body              string
}

// ResolveEnvelopeFormatOptions reads agents.defaults.envelope.
func ResolveEnvelopeFormatOptions(cfg *config.Config) EnvelopeFormatOptions {
	opts := EnvelopeFormatOptions{Location: time.Local, IncludeTimestamp: true, IncludeElapsed: true}
	if cfg == nil {
		return opts
	}
	env := cfg.Agents.Defaults.Envelope
	if env.Timestamp != nil {
		opts.IncludeTimestamp = *env.Timestamp
	}
	if env.Elapsed != nil {
		opts.IncludeElapsed = *env.Elapsed
	}
	switch tz := strings.TrimSpace(env.Timezone); strings.ToLower(tz) {
	case "", "local":
	case "utc":
		opts.Location = time.UTC
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			slog.Warn("envelope: unknown timezone, using local", "timezone", tz, "error", err)
			break
		}
		opts.Location = loc
	}
	return opts
}

// FormatAgentEnvelope renders "[<channel> <from> +<elapsed> <timestamp>] <body>".
// Parts that are disabled or unknown are omitted.
func FormatAgentEnvelope(p EnvelopeParams) string {
	header := []string{}
	if c := strings.TrimSpace(p.Channel); c != "" {
		header = append(header, c)
	}
	if f := strings.TrimSpace(p.From); f != "" {
		header = append(header, f)
	}
	if p.Envelope.IncludeElapsed && !p.PreviousTimestamp.IsZero() && !p.Timestamp.IsZero() {
		if d := p.Timestamp.Sub(p.PreviousTimestamp); d >= 0 {
			header = append(header, "+"+FormatElapsed(d))
		}
	}
	if p.Envelope.IncludeTimestamp && !p.Timestamp.IsZero() {
		loc := p.Envelope.Location
		if loc == nil {
			loc = time.Local
		}
		header = append(header, p.Timestamp.In(loc).Format("2006-01-02 15:04 MST"))
	}
	if len(header) == 0 {
		return p.Body
	}
	return "[" + strings.Join(header, " ") + "] " + p.Body
}

// FormatElapsed renders d in the largest whole unit: 45s, 3m, 2h, 4d.
func FormatElapsed(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	default:
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
}
