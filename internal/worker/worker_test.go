package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/greenway-eco/backend/pkg/mailer"
	"github.com/greenway-eco/backend/pkg/queue"
)

type fakeEmails struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (f *fakeEmails) Send(_ context.Context, msg mailer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeEmails) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeImages struct {
	deleted []string
	failOn  string
}

func (f *fakeImages) DeleteImage(_ context.Context, key string) error {
	if key == f.failOn {
		return errors.New("access denied")
	}
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return j, "", nil
	}
	q.mu.Unlock()
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, "", nil
	}
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, job)
	return nil
}

func job(t *testing.T, typ queue.JobType, payload any) *queue.Job {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &queue.Job{ID: string(typ), Type: typ, Payload: raw}
}

func TestProcessEmail(t *testing.T) {
	emails := &fakeEmails{}
	p := NewProcessor(emails, nil, &fakeQueue{}, zaptest.NewLogger(t))

	err := p.Process(context.Background(), job(t, queue.JobTypeEmail, queue.EmailPayload{
		EmailType:      queue.EmailPasswordReset,
		RecipientEmail: "ana@example.com",
		RecipientName:  "Ana",
		Subject:        "Reset",
		BodyHTML:       "<p>link</p>",
	}))
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(emails.sent) != 1 || emails.sent[0].To != "ana@example.com" || emails.sent[0].HTML != "<p>link</p>" {
		t.Fatalf("unexpected sent mail %+v", emails.sent)
	}
}

func TestProcessImageCleanup(t *testing.T) {
	images := &fakeImages{failOn: "listings/o1/b.png"}
	p := NewProcessor(&fakeEmails{}, images, &fakeQueue{}, nil)

	err := p.Process(context.Background(), job(t, queue.JobTypeImageCleanup, queue.ImageCleanupPayload{
		ListingID: "l1",
		Keys:      []string{"listings/o1/a.png", "listings/o1/b.png"},
	}))
	if err == nil {
		t.Fatalf("expected partial failure to be reported")
	}
	if len(images.deleted) != 1 || images.deleted[0] != "listings/o1/a.png" {
		t.Fatalf("expected remaining keys to be deleted, got %v", images.deleted)
	}

	p = NewProcessor(&fakeEmails{}, nil, &fakeQueue{}, nil)
	if err := p.Process(context.Background(), job(t, queue.JobTypeImageCleanup, queue.ImageCleanupPayload{Keys: []string{"k"}})); err == nil {
		t.Fatalf("expected error without image storage")
	}
}

func TestProcessUnknownType(t *testing.T) {
	p := NewProcessor(&fakeEmails{}, nil, &fakeQueue{}, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: "fax"}); err == nil {
		t.Fatalf("expected unknown job type error")
	}
}

func TestRunProcessesAndRetries(t *testing.T) {
	emails := &fakeEmails{}
	q := &fakeQueue{}
	q.jobs = []*queue.Job{
		job(t, queue.JobTypeEmail, queue.EmailPayload{RecipientEmail: "a@example.com", Subject: "Hi"}),
		{ID: "bad", Type: queue.JobTypeEmail, Payload: json.RawMessage(`"nope"`)},
	}
	p := NewProcessor(emails, nil, q, zaptest.NewLogger(t))
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		q.mu.Lock()
		retried := len(q.retried)
		q.mu.Unlock()
		if emails.count() == 1 && retried == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	if emails.count() != 1 {
		t.Fatalf("expected one email sent, got %d", emails.count())
	}
	if len(q.retried) != 1 || q.retried[0].ID != "bad" {
		t.Fatalf("expected bad job to be retried, got %+v", q.retried)
	}
}
