package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{name: "primary answers", failing: nil, want: "primary"},
		{name: "falls back", failing: map[string]bool{"primary": true}, want: "secondary"},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
			g.Add("secondary", "secondary")

			got, err := Do(context.Background(), g, func(v string) (string, error) {
				if tt.failing[v] {
					return "", errTest
				}
				return v, nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Do = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestDo_SkipsOpenPrimary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	g.Add("secondary", "secondary")

	calls := map[string]int{}
	fn := func(v string) (string, error) {
		calls[v]++
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	}
	for range 3 {
		if _, err := Do(ctx, g, fn); err != nil {
			t.Fatal(err)
		}
	}
	if calls["primary"] != 1 || calls["secondary"] != 3 {
		t.Errorf("calls = %v; open primary should be skipped", calls)
	}
	if s := g.States()["primary"]; s != StateOpen {
		t.Errorf("primary state = %v, want open", s)
	}
	if avail := g.Available(); avail["primary"] || !avail["secondary"] {
		t.Errorf("Available = %v", avail)
	}
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	g := NewGroup("primary", "primary", BreakerConfig{})
	g.Add("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	var called []string
	_, err := Do(ctx, g, func(v string) (string, error) {
		called = append(called, v)
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(called) != 1 {
		t.Errorf("called = %v; a cancelled request must not fall through", called)
	}
}
