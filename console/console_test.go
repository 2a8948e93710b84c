package console_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrolab/ezobridge/console"
)

// fakeDevice records every wire command and serves canned replies in order.
// It is safe for use from the Run goroutine while the test inspects it.
type fakeDevice struct {
	mu       sync.Mutex
	cmds     []string
	timeouts []time.Duration
	replies  []string
	unsol    chan string
}

func newFakeDevice(replies ...string) *fakeDevice {
	return &fakeDevice{
		replies: replies,
		unsol:   make(chan string, 4),
	}
}

func (f *fakeDevice) Query(_ context.Context, cmd string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmds = append(f.cmds, cmd)
	f.timeouts = append(f.timeouts, timeout)
	if len(f.replies) > 0 {
		r := f.replies[0]
		f.replies = f.replies[1:]
		return r, nil
	}
	return "*OK", nil
}

func (f *fakeDevice) Unsolicited() <-chan string {
	return f.unsol
}

func (f *fakeDevice) Cmds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cmds...)
}

func (f *fakeDevice) Timeouts() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.timeouts...)
}

// safeBuffer is a bytes.Buffer usable from the Run goroutine while the test
// polls its contents.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConsole(dev *fakeDevice) (*console.Console, *safeBuffer) {
	out := &safeBuffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return console.New(dev, strings.NewReader(""), out, logger), out
}

func TestExecWireRouting(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{line: "r", want: "R"},
		{line: "i", want: "I"},
		{line: "status", want: "Status"},
		{line: "factory", want: "Factory"},
		{line: "sleep", want: "Sleep"},
		{line: "t ?", want: "T,?"},
		{line: "t 25.0", want: "T,25.00"},
		{line: "t 18", want: "T,18.00"},
		{line: "cal clear", want: "Cal,clear"},
		{line: "cal dry", want: "Cal,dry"},
		{line: "cal ?", want: "Cal,?"},
		{line: "cal low 84.0", want: "Cal,low,84.00"},
		{line: "cal mid 1413", want: "Cal,mid,1413.00"},
		{line: "cal high 12880", want: "Cal,high,12880.00"},
		{line: "cal 150", want: "Cal,low,150.00"},
		{line: "cal 200", want: "Cal,low,200.00"},
		{line: "cal 1413", want: "Cal,mid,1413.00"},
		{line: "cal 3000", want: "Cal,mid,3000.00"},
		{line: "cal 5000", want: "Cal,high,5000.00"},
		{line: "cal -5", want: "Cal,low,-5.00"},
		{line: "o ?", want: "O,?"},
		{line: "o ec on", want: "O,EC,1"},
		{line: "o ec off", want: "O,EC,0"},
		{line: "o tds on", want: "O,TDS,1"},
		{line: "o sal off", want: "O,SAL,0"},
		{line: "o sg on", want: "O,SG,1"},
		{line: "led on", want: "L,1"},
		{line: "led off", want: "L,0"},
		{line: "c on", want: "C,1"},
		{line: "c off", want: "C,0"},
		{line: "k ?", want: "K,?"},
		{line: "k 1.0", want: "K,1.0"},
		{line: "k 0.1", want: "K,0.1"},
		{line: "K 10", want: "K,10.0"}, // verbs are case-insensitive
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			dev := newFakeDevice()
			c, _ := newTestConsole(dev)

			c.Exec(context.Background(), tt.line)

			require.Len(t, dev.Cmds(), 1, "expected exactly one wire command")
			assert.Equal(t, tt.want, dev.Cmds()[0])
		})
	}
}

func TestExecTimeoutBudgets(t *testing.T) {
	tests := []struct {
		line string
		want time.Duration
	}{
		{line: "r", want: 1000 * time.Millisecond},
		{line: "cal dry", want: 2000 * time.Millisecond},
		{line: "cal mid 1413", want: 4000 * time.Millisecond},
		{line: "cal 5000", want: 4000 * time.Millisecond},
		{line: "factory", want: 2000 * time.Millisecond},
		{line: "led on", want: 1200 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			dev := newFakeDevice()
			c, _ := newTestConsole(dev)

			c.Exec(context.Background(), tt.line)

			require.Len(t, dev.Timeouts(), 1)
			assert.Equal(t, tt.want, dev.Timeouts()[0])
		})
	}
}

func TestExecRejectsMalformedArguments(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantMsg string
	}{
		{name: "unknown verb", line: "frobnicate now", wantMsg: "unknown command"},
		{name: "t missing value", line: "t", wantMsg: "usage"},
		{name: "t non-numeric", line: "t warm", wantMsg: "usage"},
		{name: "cal missing point value", line: "cal low", wantMsg: "missing value"},
		{name: "cal unknown subcommand", line: "cal wet", wantMsg: "unknown subcommand"},
		{name: "cal empty", line: "cal", wantMsg: "unknown subcommand"},
		{name: "o unknown channel", line: "o ph on", wantMsg: "unknown channel"},
		{name: "o missing toggle", line: "o ec", wantMsg: "on|off"},
		{name: "k zero", line: "k 0", wantMsg: "0.1 | 1.0 | 10.0"},
		{name: "k non-numeric", line: "k big", wantMsg: "0.1 | 1.0 | 10.0"},
		{name: "led bad toggle", line: "led blink", wantMsg: "on|off"},
		{name: "c bad toggle", line: "c maybe", wantMsg: "on|off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			c, out := newTestConsole(dev)

			c.Exec(context.Background(), tt.line)

			assert.Empty(t, dev.Cmds(), "no wire command may be issued for a rejected line")
			assert.Contains(t, out.String(), tt.wantMsg)
		})
	}
}

func TestExecPeriod(t *testing.T) {
	t.Run("positive period is applied", func(t *testing.T) {
		dev := newFakeDevice()
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "period 250")

		assert.Equal(t, 250*time.Millisecond, c.State().Period)
		assert.Contains(t, out.String(), "[period] 250 ms")
	})

	t.Run("zero period rejected, state unchanged", func(t *testing.T) {
		dev := newFakeDevice()
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "period 500")
		c.Exec(context.Background(), "period 0")

		assert.Equal(t, 500*time.Millisecond, c.State().Period)
		assert.Contains(t, out.String(), "[period] must be > 0 ms")
	})

	t.Run("non-numeric period rejected", func(t *testing.T) {
		dev := newFakeDevice()
		c, _ := newTestConsole(dev)

		c.Exec(context.Background(), "period fast")

		assert.Equal(t, console.DefaultPeriod, c.State().Period)
	})
}

func TestExecStream(t *testing.T) {
	t.Run("stream on samples immediately", func(t *testing.T) {
		dev := newFakeDevice("84.0")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")

		require.True(t, c.State().Streaming)
		assert.Contains(t, out.String(), "[stream] ON")
		require.Len(t, dev.Cmds(), 1)
		assert.Equal(t, "R", dev.Cmds()[0])
		assert.Equal(t, 900*time.Millisecond, dev.Timeouts()[0])
	})

	t.Run("stream off when already off still reports OFF", func(t *testing.T) {
		dev := newFakeDevice()
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream off")

		assert.False(t, c.State().Streaming)
		assert.Contains(t, out.String(), "[stream] OFF")
		assert.Empty(t, dev.Cmds())
	})

	t.Run("stream on twice does not resample", func(t *testing.T) {
		dev := newFakeDevice("84.0", "84.0")
		c, _ := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")
		c.Exec(context.Background(), "stream on")

		assert.Len(t, dev.Cmds(), 1)
	})
}

func TestExecRaw(t *testing.T) {
	dev := newFakeDevice()
	c, out := newTestConsole(dev)

	c.Exec(context.Background(), "raw on")
	assert.True(t, c.State().PrintRaw)
	assert.Contains(t, out.String(), "[raw] ON")

	c.Exec(context.Background(), "raw off")
	assert.False(t, c.State().PrintRaw)
	assert.Contains(t, out.String(), "[raw] OFF")
}

func TestSampleOutput(t *testing.T) {
	t.Run("labeled reading with SG", func(t *testing.T) {
		dev := newFakeDevice("EC,1413,TDS,700,SAL,700,SG,1.001")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")

		s := out.String()
		assert.Contains(t, s, "EC: 1413.000000 µS/cm")
		assert.Contains(t, s, "TDS≈: 706.5 ppm")
		assert.Contains(t, s, "SAL≈: 0.7 ppm")
		assert.Contains(t, s, "SG: 1.001000")
	})

	t.Run("unlabeled reading shows SG as n/a", func(t *testing.T) {
		dev := newFakeDevice("1413,700,700,1.001")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")

		assert.Contains(t, out.String(), "SG: n/a")
	})

	t.Run("timeout is reported", func(t *testing.T) {
		dev := newFakeDevice("")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")

		s := out.String()
		assert.Contains(t, s, "[ezo] reply: (timeout)")
		assert.Contains(t, s, "[read] (timeout)")
	})

	t.Run("acknowledgement stays silent", func(t *testing.T) {
		dev := newFakeDevice("*OK")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")

		assert.NotContains(t, out.String(), "[read]")
	})

	t.Run("garbage is reported verbatim", func(t *testing.T) {
		dev := newFakeDevice("1413,700")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "stream on")

		assert.Contains(t, out.String(), "[read] uninterpretable reply: 1413,700")
	})

	t.Run("raw mode dumps the verbatim reply", func(t *testing.T) {
		dev := newFakeDevice("84.0")
		c, out := newTestConsole(dev)

		c.Exec(context.Background(), "raw on")
		c.Exec(context.Background(), "stream on")

		assert.Contains(t, out.String(), "[ezo] raw: 84.0")
	})
}

func TestRun(t *testing.T) {
	t.Run("configures outputs once and dispatches input until EOF", func(t *testing.T) {
		dev := newFakeDevice()
		out := &safeBuffer{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		c := console.New(dev, strings.NewReader("status\n"), out, logger)

		err := c.Run(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"O,EC,1", "O,TDS,0", "O,SAL,0", "O,SG,0", "Status"}, dev.Cmds())
		assert.True(t, c.State().OutputsConfigured)
		assert.Contains(t, out.String(), "[config] outputs configured")
		assert.Contains(t, out.String(), "[help] available commands")
	})

	t.Run("unterminated input dispatches after the idle grace", func(t *testing.T) {
		dev := newFakeDevice()
		out := &safeBuffer{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		pr, pw := io.Pipe()
		defer pw.Close()
		c := console.New(dev, pr, out, logger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- c.Run(ctx)
		}()

		// "r" with no line ending, as a terminal with Line Ending: None sends it
		_, err := pw.Write([]byte("r"))
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return len(dev.Cmds()) == 5 // four setup commands plus R
		}, 2*time.Second, 10*time.Millisecond)
		assert.Equal(t, "R", dev.Cmds()[4])

		cancel()
		<-done
	})

	t.Run("pending input is flushed on EOF", func(t *testing.T) {
		dev := newFakeDevice()
		out := &safeBuffer{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		c := console.New(dev, strings.NewReader("i"), out, logger)

		err := c.Run(context.Background())
		require.NoError(t, err)

		cmds := dev.Cmds()
		require.Len(t, cmds, 5)
		assert.Equal(t, "I", cmds[4])
	})

	t.Run("continuous-mode lines are interpreted", func(t *testing.T) {
		dev := newFakeDevice()
		out := &safeBuffer{}
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		pr, pw := io.Pipe()
		defer pw.Close()
		c := console.New(dev, pr, out, logger)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- c.Run(ctx)
		}()

		dev.unsol <- "EC,84.0"

		require.Eventually(t, func() bool {
			return strings.Contains(out.String(), "EC: 84.000000 µS/cm")
		}, 2*time.Second, 10*time.Millisecond)

		cancel()
		<-done
	})
}
