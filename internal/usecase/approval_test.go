package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"aura-agents/internal/domain"
)

type stubPrompter struct {
	answer  bool
	err     error
	calls   atomic.Int32
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (p *stubPrompter) Confirm(context.Context, string, string, string) (bool, error) {
	p.calls.Add(1)
	n := p.active.Add(1)
	if n > p.maxSeen.Load() {
		p.maxSeen.Store(n)
	}
	time.Sleep(time.Millisecond)
	p.active.Add(-1)
	return p.answer, p.err
}

func TestConfigConfirmerAlwaysApprove(t *testing.T) {
	c := NewConfigConfirmer([]string{"write_file"}, nil, nil, nil)

	ok, err := c.RequestApproval(context.Background(), "write_file", "", `{}`)
	if err != nil || !ok {
		t.Errorf("expected approval, got ok=%v err=%v", ok, err)
	}
}

func TestConfigConfirmerDenyWins(t *testing.T) {
	p := &stubPrompter{answer: true}
	c := NewConfigConfirmer([]string{"delete_file"}, []string{"delete_file"}, p, nil)

	ok, err := c.RequestApproval(context.Background(), "delete_file", "", `{}`)
	if ok || err != nil {
		t.Errorf("expected silent denial, got ok=%v err=%v", ok, err)
	}
	if p.calls.Load() != 0 {
		t.Error("prompter must not be asked for a denied tool")
	}
}

func TestConfigConfirmerNoPrompterRejects(t *testing.T) {
	c := NewConfigConfirmer(nil, nil, nil, nil)

	ok, err := c.RequestApproval(context.Background(), "delete_file", "", `{}`)
	if ok || err != nil {
		t.Errorf("expected rejection without error, got ok=%v err=%v", ok, err)
	}
}

func TestConfigConfirmerAsksPrompter(t *testing.T) {
	for _, answer := range []bool{true, false} {
		p := &stubPrompter{answer: answer}
		c := NewConfigConfirmer(nil, nil, p, nil)

		ok, err := c.RequestApproval(context.Background(), "delete_file", "delete a file", `{"path":"a"}`)
		if err != nil {
			t.Fatalf("RequestApproval: %v", err)
		}
		if ok != answer {
			t.Errorf("ok = %v, want %v", ok, answer)
		}
	}
}

func TestConfigConfirmerPromptError(t *testing.T) {
	c := NewConfigConfirmer(nil, nil, &stubPrompter{err: errors.New("stdin closed")}, nil)

	ok, err := c.RequestApproval(context.Background(), "delete_file", "", `{}`)
	if ok {
		t.Error("expected no approval")
	}
	if !errors.Is(err, domain.ErrToolApprovalDenied) {
		t.Errorf("expected ErrToolApprovalDenied, got %v", err)
	}
}

func TestConfigConfirmerCancelled(t *testing.T) {
	p := &stubPrompter{answer: true}
	c := NewConfigConfirmer(nil, nil, p, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := c.RequestApproval(ctx, "delete_file", "", `{}`)
	if ok || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation, got ok=%v err=%v", ok, err)
	}
	if p.calls.Load() != 0 {
		t.Error("prompter called after cancellation")
	}
}

func TestConfigConfirmerSerializesPrompts(t *testing.T) {
	p := &stubPrompter{answer: true}
	c := NewConfigConfirmer(nil, nil, p, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RequestApproval(context.Background(), "delete_file", "", `{}`)
		}()
	}
	wg.Wait()

	if p.calls.Load() != 8 {
		t.Errorf("calls = %d, want 8", p.calls.Load())
	}
	if p.maxSeen.Load() != 1 {
		t.Errorf("prompts overlapped: %d concurrent", p.maxSeen.Load())
	}
}
