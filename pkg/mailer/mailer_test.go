package mailer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	mail "gopkg.in/mail.v2"
)

type captureSender struct {
	sent []*mail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*mail.Message) error {
	c.sent = append(c.sent, m...)
	return c.err
}

func TestSendBuildsHTMLMessage(t *testing.T) {
	cs := &captureSender{}
	m := New(Config{FromAddress: "noreply@greenway.example", FromName: "Greenway"}, nil).WithSender(cs)

	err := m.Send(context.Background(), Message{To: "ana@example.com", ToName: "Ana", Subject: "Hello", HTML: "<p>Hi</p>"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(cs.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(cs.sent))
	}
	msg := cs.sent[0]
	if got := msg.GetHeader("Subject"); len(got) != 1 || got[0] != "Hello" {
		t.Fatalf("unexpected subject %v", got)
	}
	if got := msg.GetHeader("To"); len(got) != 1 || !strings.Contains(got[0], "ana@example.com") {
		t.Fatalf("unexpected recipient %v", got)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "text/html") {
		t.Fatalf("expected html body:\n%s", buf.String())
	}
}

func TestSendErrors(t *testing.T) {
	if err := New(Config{}, nil).Send(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	boom := errors.New("smtp 554")
	m := New(Config{}, nil).WithSender(&captureSender{err: boom})
	if err := m.Send(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped smtp error, got %v", err)
	}
	if err := m.Send(context.Background(), Message{}); err == nil {
		t.Fatalf("expected missing recipient error")
	}
}
