package liveness

import (
	"os"
	"testing"
)

func TestOSAlive(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		pid  int
		want bool
	}{
		"own process is alive":   {pid: os.Getpid(), want: true},
		"zero pid is not alive":  {pid: 0, want: false},
		"negative pid not alive": {pid: -7, want: false},
		// Linux caps pids at 2^22 by default; this pid cannot exist.
		"absurd pid not alive": {pid: 1 << 30, want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if got := (OS{}).Alive(tc.pid); got != tc.want {
				t.Errorf("Alive(%d) = %v, want %v", tc.pid, got, tc.want)
			}
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	t.Parallel()

	calls := 0
	p := Func(func(pid int) bool {
		calls++
		return pid == 42
	})

	if !p.Alive(42) {
		t.Error("expected pid 42 to be alive")
	}
	if p.Alive(43) {
		t.Error("expected pid 43 to be dead")
	}
	if calls != 2 {
		t.Errorf("probe called %d times, want 2", calls)
	}
}
