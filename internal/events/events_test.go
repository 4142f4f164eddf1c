package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRedactor struct{ secret string }

func (f fakeRedactor) Redact(s string) string {
	out := ""
	for i := 0; i+len(f.secret) <= len(s); i++ {
		if s[i:i+len(f.secret)] == f.secret {
			out += "***"
			i += len(f.secret) - 1
			continue
		}
		out += string(s[i])
	}
	return out
}

func TestChannelSinkDoesNotBlockWhenFull(t *testing.T) {
	ch := make(ChannelSink, 1)
	ch.Emit(Progress{Stage: "a"})
	done := make(chan struct{})
	go func() {
		ch.Emit(Progress{Stage: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full channel")
	}
}

func TestRedactingSinkStripsSecret(t *testing.T) {
	ch := make(ChannelSink, 1)
	sink := RedactingSink{Inner: ch, Redactor: fakeRedactor{secret: "AKIAVERYSECRET"}}
	sink.Emit(Progress{Stage: "build", Text: "pushing with key AKIAVERYSECRET now"})
	got := <-ch
	require.NotContains(t, got.Text, "AKIAVERYSECRET")
}

func TestEndSeverityOnError(t *testing.T) {
	ch := make(ChannelSink, 1)
	End(ch, "build", errSentinel{})
	got := <-ch
	require.Equal(t, SeverityError, got.Severity)
}

type errSentinel struct{}

func (errSentinel) Error() string { return "boom" }
