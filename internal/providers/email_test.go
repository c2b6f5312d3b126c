package providers

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildMessageHeaders(t *testing.T) {
	msg := buildMessage("from@example.com", "to@example.com", "Hello", "body text", "text/plain; charset=utf-8")
	for _, want := range []string{"From: from@example.com", "To: to@example.com", "Subject: Hello", "Content-Type: text/plain", "body text"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %q, got:\n%s", want, msg)
		}
	}
}

func TestBuildMessageDefaultsContentType(t *testing.T) {
	msg := buildMessage("a@example.com", "b@example.com", "s", "body", "")
	if !strings.Contains(msg, "Content-Type: text/plain; charset=utf-8") {
		t.Errorf("expected default content type, got:\n%s", msg)
	}
}

func TestClassifySMTPErr(t *testing.T) {
	tests := []struct {
		err     error
		outcome Outcome
	}{
		{errors.New("450 mailbox temporarily unavailable"), TransientFailure},
		{errors.New("550 no such user"), PermanentFailure},
		{errors.New("connection reset by peer"), TransientFailure},
	}
	for _, tt := range tests {
		result, _ := classifySMTPErr(tt.err)
		if result.Outcome != tt.outcome {
			t.Errorf("classifySMTPErr(%q) = %v, want %v", tt.err, result.Outcome, tt.outcome)
		}
	}
}

func TestSanitizeMessageID(t *testing.T) {
	got := sanitizeMessageID("user@example.com")
	if strings.Contains(got, "@") {
		t.Errorf("expected @ to be replaced, got %q", got)
	}
}
