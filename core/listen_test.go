package orchestration

import (
	"context"
	"testing"
	"time"
)

func TestWhenFiresMatchingTriggersInOrder(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background(), WithContinuous())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	fired := []string{}
	control.
		When("yes", func(*ListenControl) { fired = append(fired, "yes") }).
		When("yes please", func(*ListenControl) { fired = append(fired, "yes please") }).
		When("never", func(*ListenControl) { fired = append(fired, "never") })

	engine.options().FinalCallback("Yes please, go ahead", 0.9)

	if len(fired) != 2 || fired[0] != "yes" || fired[1] != "yes please" {
		t.Fatalf("expected both matching triggers in registration order, got %v", fired)
	}

	select {
	case <-control.Result().Done():
		t.Fatalf("expected a continuous session to keep listening after a final result")
	default:
	}

	control.Stop(context.Background())
}

func TestPhraseMatchingNormalizesCaseAndWhitespace(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background(), WithContinuous())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	matches := 0
	control.When("  Turn   OFF ", func(*ListenControl) { matches++ })

	engine.options().FinalCallback("please turn off the lights", 1)

	if matches != 1 {
		t.Fatalf("expected the normalized phrase to match, got %d matches", matches)
	}

	control.Stop(context.Background())
}

func TestTriggerCanStopItsOwnSession(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background(), WithContinuous())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}
	control.When("stop listening", func(c *ListenControl) { c.Stop(context.Background()) })

	engine.options().FinalCallback("okay stop listening now", 1)

	result, err := control.Result().Wait(context.Background())
	if err != nil || result.Text != "" {
		t.Fatalf("expected a stopped session to settle empty, got %+v %v", result, err)
	}
	if o.IsListening() {
		t.Fatalf("expected the session to be stopped by its trigger")
	}
	if got := engine.stopCount(); got != 1 {
		t.Fatalf("expected one engine stop, got %d", got)
	}
}

func TestStopBeforeSessionSettlesEmpty(t *testing.T) {
	control := &ListenControl{result: newListenResult()}

	control.Stop(context.Background())

	result, err := control.Result().Wait(context.Background())
	if err != nil || result.Text != "" {
		t.Fatalf("expected an unbound handle to settle empty on stop, got %+v %v", result, err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background(), WithContinuous())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	waited := make(chan error, 1)
	go func() {
		_, err := control.Result().Wait(ctx)
		waited <- err
	}()

	select {
	case err := <-waited:
		if err == nil {
			t.Fatalf("expected wait to fail on a cancelled context")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for wait to return")
	}

	control.Stop(context.Background())
}
