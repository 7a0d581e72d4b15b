package execx

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Expectation is a single scripted response for a command matching
// rendered string Want.
type Expectation struct {
	Want   string
	Result *Result
	Err    error
	Stdout string

	// Exited and WaitErr configure the Handle returned for an ExecSpawn
	// expectation. Exited nil defaults to true (clean exit).
	Exited  *bool
	WaitErr error
}

// Mock is a scriptable Executor for tests: register expectations keyed on
// the rendered command string; each matching call consumes one, and Calls
// lists every command seen. Mock does not report expectations that were
// never consumed.
type Mock struct {
	expectations []*Expectation
	calls        []string
}

// NewMock returns an empty Mock executor.
func NewMock() *Mock {
	return &Mock{}
}

// Expect registers an expectation matching cmd.String() == want.
func (m *Mock) Expect(want string, result *Result, err error) *Mock {
	m.expectations = append(m.expectations, &Expectation{Want: want, Result: result, Err: err})
	return m
}

// ExpectSpawn registers an expectation for ExecSpawn whose Handle.Stdout()
// yields stdout. The returned handle reports as already exited cleanly;
// use ExpectSpawnRunning or ExpectSpawnExitError for other lifecycle
// states.
func (m *Mock) ExpectSpawn(want string, stdout string, err error) *Mock {
	exited := true
	m.expectations = append(m.expectations, &Expectation{Want: want, Stdout: stdout, Err: err, Exited: &exited})
	return m
}

// ExpectSpawnRunning registers an ExecSpawn expectation whose handle
// reports as still running (TryWait returns false) until the test is done
// asserting against it.
func (m *Mock) ExpectSpawnRunning(want string, stdout string) *Mock {
	exited := false
	m.expectations = append(m.expectations, &Expectation{Want: want, Stdout: stdout, Exited: &exited})
	return m
}

// ExpectSpawnExitError registers an ExecSpawn expectation whose handle
// reports as exited with waitErr, simulating a crashed child.
func (m *Mock) ExpectSpawnExitError(want string, stdout string, waitErr error) *Mock {
	exited := true
	m.expectations = append(m.expectations, &Expectation{Want: want, Stdout: stdout, Exited: &exited, WaitErr: waitErr})
	return m
}

// Calls returns every rendered command string seen so far, in order.
func (m *Mock) Calls() []string { return m.calls }

func (m *Mock) take(rendered string) (*Expectation, error) {
	for i, e := range m.expectations {
		if e.Want == rendered {
			m.expectations = append(m.expectations[:i], m.expectations[i+1:]...)
			return e, nil
		}
	}
	return nil, fmt.Errorf("execx.Mock: no expectation registered for command %q", rendered)
}

func (m *Mock) Exec(_ context.Context, cmd *Cmd) (*Result, error) {
	rendered := cmd.String()
	m.calls = append(m.calls, rendered)
	e, err := m.take(rendered)
	if err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Result == nil {
		return &Result{}, nil
	}
	return e.Result, nil
}

type mockHandle struct {
	stdout  io.ReadCloser
	exited  bool
	waitErr error
	killed  bool
}

func (h *mockHandle) Stdout() io.ReadCloser { return h.stdout }
func (h *mockHandle) Wait() error           { return h.waitErr }
func (h *mockHandle) TryWait() (bool, error) {
	return h.exited, h.waitErr
}
func (h *mockHandle) Kill() error {
	h.killed = true
	h.exited = true
	return nil
}

func (m *Mock) ExecSpawn(_ context.Context, cmd *Cmd) (Handle, error) {
	rendered := cmd.String()
	m.calls = append(m.calls, rendered)
	e, err := m.take(rendered)
	if err != nil {
		return nil, err
	}
	if e.Err != nil {
		return nil, e.Err
	}
	exited := true
	if e.Exited != nil {
		exited = *e.Exited
	}
	return &mockHandle{stdout: io.NopCloser(strings.NewReader(e.Stdout)), exited: exited, waitErr: e.WaitErr}, nil
}
