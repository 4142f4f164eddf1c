// Package events defines the Progress Event (§3) emitted by every
// long-running component and consumed by the Chat API Front-End.
package events

import "time"

// Phase is where in a stage's lifetime an event falls.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseLog   Phase = "log"
	PhaseEnd   Phase = "end"
)

// Severity classifies an event for client-side styling; it never changes
// control flow.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Progress is one unit of observable pipeline progress.
type Progress struct {
	Stage     string         `json:"stage"`
	Phase     Phase          `json:"phase"`
	Severity  Severity       `json:"severity"`
	Text      string         `json:"text"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink is what every component writes Progress events to. It is a plain
// channel in this codebase (Design Notes §9: "each pipeline is an
// independently-scheduled task with an outbound event channel"); Sink
// exists so components depend on the capability, not the channel type.
type Sink interface {
	Emit(Progress)
}

// ChannelSink adapts a chan Progress to Sink, dropping events instead of
// blocking once the channel's consumer has gone away (buffer full) so a
// slow/disconnected chat client never stalls the pipeline (§5: "disconnect
// cancels streaming, not the pipeline").
type ChannelSink chan Progress

func (c ChannelSink) Emit(p Progress) {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	select {
	case c <- p:
	default:
	}
}

// Redactor strips sensitive material from event text before it is emitted.
// credentials.Scope satisfies this via its Redact method.
type Redactor interface {
	Redact(string) string
}

// RedactingSink wraps an inner Sink, passing every event's Text (and any
// string values in Data) through redactor first. The pipeline wraps its
// per-invocation event sink with this whenever a Credential Scope is live,
// so P3 holds structurally rather than by caller discipline.
type RedactingSink struct {
	Inner    Sink
	Redactor Redactor
}

func (r RedactingSink) Emit(p Progress) {
	if r.Redactor != nil {
		p.Text = r.Redactor.Redact(p.Text)
		for k, v := range p.Data {
			if s, ok := v.(string); ok {
				p.Data[k] = r.Redactor.Redact(s)
			}
		}
	}
	if r.Inner != nil {
		r.Inner.Emit(p)
	}
}

// Log emits a PhaseLog info event for stage with text.
func Log(sink Sink, stage, text string) {
	if sink == nil {
		return
	}
	sink.Emit(Progress{Stage: stage, Phase: PhaseLog, Severity: SeverityInfo, Text: text})
}

// Warn emits a PhaseLog warning event for stage with text.
func Warn(sink Sink, stage, text string) {
	if sink == nil {
		return
	}
	sink.Emit(Progress{Stage: stage, Phase: PhaseLog, Severity: SeverityWarn, Text: text})
}

// Start emits a PhaseStart event for stage.
func Start(sink Sink, stage, text string) {
	if sink == nil {
		return
	}
	sink.Emit(Progress{Stage: stage, Phase: PhaseStart, Severity: SeverityInfo, Text: text})
}

// End emits a PhaseEnd event for stage, severity depending on err.
func End(sink Sink, stage string, err error) {
	if sink == nil {
		return
	}
	sev := SeverityInfo
	text := stage + " complete"
	if err != nil {
		sev = SeverityError
		text = err.Error()
	}
	sink.Emit(Progress{Stage: stage, Phase: PhaseEnd, Severity: sev, Text: text})
}
