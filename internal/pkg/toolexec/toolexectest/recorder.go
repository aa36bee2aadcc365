// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package toolexectest provides a scripted toolexec.Runner for tests.
package toolexectest

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/siderolabs/rpi-shrink/internal/pkg/toolexec"
)

// Call is a single recorded invocation.
type Call struct {
	Name  string
	Args  []string
	Stdin string
}

// String renders the call as a command line.
func (c Call) String() string {
	return toolexec.CommandLine(c.Name, c.Args...)
}

type response struct {
	output string
	err    error
}

// Recorder records invocations and answers them from a script.
//
// Responses are matched by the longest registered command line prefix.
// Queued responses are consumed in order, the last one repeats.
// Unscripted invocations succeed with empty output.
type Recorder struct {
	mu        sync.Mutex
	calls     []Call
	responses map[string][]response
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		responses: map[string][]response{},
	}
}

// On queues a response for invocations starting with prefix.
func (r *Recorder) On(prefix, output string, err error) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.responses[prefix] = append(r.responses[prefix], response{output: output, err: err})

	return r
}

// Run implements toolexec.Runner.
func (r *Recorder) Run(_ context.Context, name string, args ...string) (string, error) {
	return r.record(Call{Name: name, Args: args})
}

// RunWithInput implements toolexec.Runner.
func (r *Recorder) RunWithInput(_ context.Context, stdin io.Reader, name string, args ...string) (string, error) {
	input, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}

	return r.record(Call{Name: name, Args: args, Stdin: string(input)})
}

func (r *Recorder) record(call Call) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)

	line := call.String()
	match := ""

	for prefix := range r.responses {
		if strings.HasPrefix(line, prefix) && len(prefix) > len(match) {
			match = prefix
		}
	}

	queue, ok := r.responses[match]
	if !ok {
		return "", nil
	}

	resp := queue[0]

	if len(queue) > 1 {
		r.responses[match] = queue[1:]
	}

	return resp.output, resp.err
}

// Calls returns a copy of the recorded invocations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}

// Lines returns the recorded invocations as command lines.
func (r *Recorder) Lines() []string {
	calls := r.Calls()
	lines := make([]string, 0, len(calls))

	for _, call := range calls {
		lines = append(lines, call.String())
	}

	return lines
}

// Called reports whether any invocation of the named tool was recorded.
func (r *Recorder) Called(name string) bool {
	for _, call := range r.Calls() {
		if call.Name == name {
			return true
		}
	}

	return false
}
