package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/BTreeMap/PostPipe/internal/flow"
	"github.com/BTreeMap/PostPipe/internal/models"
)

func TestInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	malformed := &models.BackendError{Op: flow.OpGeneratePosts, Kind: models.BackendErrorMalformed, Err: errors.New("bad json")}
	sb := &scriptedBackend{Template: NewTemplate(), errs: []error{nil, malformed}}
	b := Instrument(sb, m)

	ctx := context.Background()
	if _, err := b.GeneratePosts(ctx, nil, "Fresh bread daily", "families", models.ToneCasual, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := b.GeneratePosts(ctx, nil, "Fresh bread daily", "families", models.ToneCasual, true); err == nil {
		t.Fatal("expected the scripted error")
	}

	if got := testutil.ToFloat64(m.calls.WithLabelValues(flow.OpGeneratePosts, "success")); got != 1 {
		t.Errorf("expected 1 successful call, got %v", got)
	}
	if got := testutil.ToFloat64(m.calls.WithLabelValues(flow.OpGeneratePosts, string(models.BackendErrorMalformed))); got != 1 {
		t.Errorf("expected 1 malformed call, got %v", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("expected one latency series, got %d", n)
	}
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewMetrics(reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewMetrics(reg); err == nil {
		t.Error("expected registering twice to fail")
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{errors.New("boom"), "error"},
		{&models.BackendError{Kind: models.BackendErrorTimeout, Err: context.DeadlineExceeded}, "timeout"},
	}
	for _, tt := range tests {
		if got := outcomeLabel(tt.err); got != tt.want {
			t.Errorf("outcomeLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
