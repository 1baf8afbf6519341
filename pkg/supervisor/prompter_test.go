package supervisor_test

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/linefleet/linefleet/pkg/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalPrompter(t *testing.T) {
	d := supervisor.Decision{Title: "Server Connection Lost", Message: "Lost connection to server.", Failures: 5}

	tcs := []struct {
		name  string
		input string
		want  supervisor.Choice
	}{
		{name: "retry", input: "r\n", want: supervisor.Retry},
		{name: "retry word", input: "  RETRY \n", want: supervisor.Retry},
		{name: "cancel", input: "c\n", want: supervisor.Cancel},
		{name: "asks again on garbage", input: "maybe\n\nr\n", want: supervisor.Retry},
		{name: "closed input", input: "", want: supervisor.Cancel},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &supervisor.TerminalPrompter{In: strings.NewReader(tc.input), Out: &out}
			assert.Equal(t, tc.want, p.Decide(context.Background(), d))
			assert.Contains(t, out.String(), "Server Connection Lost")
			assert.Contains(t, out.String(), "[r]etry / [c]ancel")
		})
	}
}

type blockingReader struct{ ch chan struct{} }

func (b blockingReader) Read([]byte) (int, error) {
	<-b.ch
	return 0, nil
}

func TestTerminalPrompterContext(t *testing.T) {
	in := blockingReader{ch: make(chan struct{})}
	defer close(in.ch)
	p := &supervisor.TerminalPrompter{In: in, Out: &bytes.Buffer{}}

	ctx, ca := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer ca()
	assert.Equal(t, supervisor.Cancel, p.Decide(ctx, supervisor.Decision{}))
}

func TestAutoRetry(t *testing.T) {
	assert.Equal(t, supervisor.Retry, supervisor.AutoRetry{}.Decide(context.Background(), supervisor.Decision{}))
	assert.Equal(t, "cancel", supervisor.Cancel.String())
	assert.Equal(t, "retry", supervisor.Retry.String())
}

func TestIsInteractive(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, supervisor.IsInteractive(f))

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	assert.False(t, supervisor.IsInteractive(r))
}
