package errors

import (
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestRecover_ConvertsPanic(t *testing.T) {
	logger := zaptest.NewLogger(t)

	run := func() (err error) {
		defer Recover(logger, "job abc", &err)
		var m map[string]int
		m["x"] = 1
		return nil
	}

	err := run()
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if GetErrorType(err) != ErrTypePanic {
		t.Errorf("GetErrorType() = %v, want %v", GetErrorType(err), ErrTypePanic)
	}
}

func TestRecover_NoPanicKeepsError(t *testing.T) {
	want := fmt.Errorf("ordinary failure")
	run := func() (err error) {
		defer Recover(nil, "op", &err)
		return want
	}

	if err := run(); err != want {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestSafely(t *testing.T) {
	logger := zaptest.NewLogger(t)

	if err := Safely(logger, "ok", func() error { return nil }); err != nil {
		t.Errorf("Safely() = %v, want nil", err)
	}

	err := Safely(logger, "boom", func() error { panic("boom") })
	if err == nil {
		t.Fatal("expected panic to be returned as error")
	}
	if got := err.Error(); got != "panic: panic in boom: boom" {
		t.Errorf("Error() = %q", got)
	}
}

func TestGo_SwallowsPanic(t *testing.T) {
	// zaptest cannot be used here: the log line may land after the test returns.
	logger := zap.NewNop()
	var wg sync.WaitGroup
	wg.Add(1)

	Go(logger, "background", func() {
		defer wg.Done()
		panic("background failure")
	})

	wg.Wait()
}
