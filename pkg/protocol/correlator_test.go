package protocol

import (
	"context"
	"errors"
	"testing"
	"time"
)

func captureSend(out chan<- Request) SendFunc {
	return func(ctx context.Context, req Request) error {
		out <- req
		return nil
	}
}

type callResult struct {
	resp Response
	err  error
}

func TestCorrelator_OutOfOrderResponses(t *testing.T) {
	sent := make(chan Request, 2)
	c := NewCorrelator(time.Second, captureSend(sent))

	first := make(chan callResult, 1)
	second := make(chan callResult, 1)
	go func() {
		resp, err := c.Call(context.Background(), Request{Kind: KindMessage, Message: "first"})
		first <- callResult{resp, err}
	}()
	reqA := <-sent
	go func() {
		resp, err := c.Call(context.Background(), Request{Kind: KindMessage, Message: "second"})
		second <- callResult{resp, err}
	}()
	reqB := <-sent

	if reqB.ID != reqA.ID+1 {
		t.Fatalf("expected consecutive ids, got %d and %d", reqA.ID, reqB.ID)
	}

	respB := OK(reqB)
	respB.Versionstamp = "b"
	respA := OK(reqA)
	respA.Versionstamp = "a"
	if !c.Deliver(respB) || !c.Deliver(respA) {
		t.Fatal("expected both responses to be accepted")
	}

	ra := <-first
	rb := <-second
	if ra.err != nil || ra.resp.Versionstamp != "a" {
		t.Fatalf("first caller got %+v (err=%v)", ra.resp, ra.err)
	}
	if rb.err != nil || rb.resp.Versionstamp != "b" {
		t.Fatalf("second caller got %+v (err=%v)", rb.resp, rb.err)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending calls, got %d", c.Pending())
	}
}

func TestCorrelator_TimeoutAndLateResponse(t *testing.T) {
	sent := make(chan Request, 2)
	c := NewCorrelator(50*time.Millisecond, captureSend(sent))

	_, err := c.Call(context.Background(), Request{Kind: KindGet})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	var te *TimeoutError
	if !errors.As(err, &te) || te.Elapsed < 50*time.Millisecond || te.Kind != KindGet {
		t.Fatalf("unexpected timeout error %#v", err)
	}
	late := <-sent

	// a second call is pending while the late answer for the first arrives
	result := make(chan callResult, 1)
	go func() {
		resp, err := c.Call(context.Background(), Request{Kind: KindGet})
		result <- callResult{resp, err}
	}()
	current := <-sent

	if c.Deliver(OK(late)) {
		t.Fatal("late response should be dropped")
	}
	if c.Pending() != 1 {
		t.Fatalf("late response touched the pending call, %d pending", c.Pending())
	}

	if !c.Deliver(OK(current)) {
		t.Fatal("expected current response to be accepted")
	}
	if r := <-result; r.err != nil || r.resp.ID != current.ID {
		t.Fatalf("unexpected result %+v (err=%v)", r.resp, r.err)
	}
}

func TestCorrelator_FailureResponse(t *testing.T) {
	sent := make(chan Request, 1)
	c := NewCorrelator(time.Second, captureSend(sent))

	go func() {
		req := <-sent
		c.Deliver(Fail(req, "failed to get item: boom"))
	}()

	_, err := c.Call(context.Background(), Request{Kind: KindGet})
	var re *RemoteError
	if !errors.As(err, &re) || re.Message != "failed to get item: boom" || re.Kind != KindGet {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestCorrelator_SendErrorUnregisters(t *testing.T) {
	boom := errors.New("boom")
	c := NewCorrelator(time.Second, func(ctx context.Context, req Request) error { return boom })

	if _, err := c.Call(context.Background(), Request{Kind: KindList}); !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}
	if c.Pending() != 0 {
		t.Fatalf("expected no pending calls, got %d", c.Pending())
	}
}

func TestCorrelator_ContextAndClose(t *testing.T) {
	sent := make(chan Request, 4)
	c := NewCorrelator(time.Second, captureSend(sent))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Call(ctx, Request{Kind: KindList}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), Request{Kind: KindList})
		result <- err
	}()
	<-sent
	<-sent
	c.Close()
	if err := <-result; !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed for pending call, got %v", err)
	}
	if _, err := c.Call(context.Background(), Request{Kind: KindList}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestCorrelator_DeliverFrame(t *testing.T) {
	sent := make(chan Request, 1)
	c := NewCorrelator(time.Second, captureSend(sent))

	go func() {
		req := <-sent
		resp := OK(req)
		resp.Versionstamp = "00000000000000010000"
		frame, err := EncodeResponse(resp)
		if err != nil {
			panic(err)
		}
		c.DeliverFrame(frame)
	}()

	resp, err := c.Call(context.Background(), Request{Kind: KindSet, Value: "x"})
	if err != nil || resp.Versionstamp != "00000000000000010000" {
		t.Fatalf("unexpected response %+v (err=%v)", resp, err)
	}
	if c.DeliverFrame([]byte("garbage")) {
		t.Fatal("garbage frame should be dropped")
	}
}
