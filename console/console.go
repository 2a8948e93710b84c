// Package console implements the operator-facing command session: it frames
// free-text input lines, maps each recognized verb onto sensor wire commands,
// and drives the periodic sampling cycle, turning raw replies into readings
// in physical units.
package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hydrolab/ezobridge/ezo"
)

// Querier is the slice of the device driver the console uses: one command in
// flight at a time, plus the stream of lines the circuit emits on its own in
// continuous mode.
type Querier interface {
	Query(ctx context.Context, cmd string, timeout time.Duration) (string, error)
	Unsolicited() <-chan string
}

// Per-command reply budgets. Calibration writes hit sensor-side flash and
// need far longer than routine polling; a uniform budget would either
// truncate them or make every read sluggish.
const (
	readTimeout      = 1000 * time.Millisecond
	sampleTimeout    = 900 * time.Millisecond
	tempTimeout      = 1200 * time.Millisecond
	calQueryTimeout  = 1500 * time.Millisecond
	calClearTimeout  = 1500 * time.Millisecond
	calDryTimeout    = 2000 * time.Millisecond
	calPointTimeout  = 4000 * time.Millisecond
	outputTimeout    = 1500 * time.Millisecond
	infoTimeout      = 1500 * time.Millisecond
	statusTimeout    = 1500 * time.Millisecond
	ledTimeout       = 1200 * time.Millisecond
	factoryTimeout   = 2000 * time.Millisecond
	sleepTimeout     = 1200 * time.Millisecond
	contTimeout      = 1200 * time.Millisecond
	cellQueryTimeout = 1200 * time.Millisecond
	cellSetTimeout   = 1500 * time.Millisecond
	setupTimeout     = 1200 * time.Millisecond
)

// DefaultPeriod is the sampling cadence until the operator changes it.
const DefaultPeriod = time.Second

// idleGrace is how long the input line may sit unterminated before it is
// dispatched anyway, so terminals configured with no line ending still work.
const idleGrace = 300 * time.Millisecond

// Session is the mutable per-session state. It is owned by the Run loop;
// the interpreter mutates the toggles and the period, the sampling driver
// reads them.
type Session struct {
	// OutputsConfigured records that the one-time O,... setup has run
	OutputsConfigured bool
	// Streaming gates the periodic sampling driver
	Streaming bool
	// Period is the sampling cadence, always strictly positive
	Period time.Duration
	// PrintRaw echoes the verbatim reply line during sampling
	PrintRaw bool
}

// Console runs one operator session against one EZO EC circuit.
type Console struct {
	dev  Querier
	in   io.Reader
	out  io.Writer
	log  *slog.Logger
	sess *Session

	// ticker drives sampling; non-nil only while Run is active
	ticker *time.Ticker
}

// New creates a Console reading operator input from in and writing
// human-readable output to out.
func New(dev Querier, in io.Reader, out io.Writer, logger *slog.Logger) *Console {
	return &Console{
		dev: dev,
		in:  in,
		out: out,
		log: logger,
		sess: &Session{
			Period: DefaultPeriod,
		},
	}
}

// State returns a snapshot of the session state.
func (c *Console) State() Session {
	return *c.sess
}

// Run executes the session until the context is cancelled or the operator
// input reaches EOF. It performs the one-time output configuration, prints
// the help banner, then multiplexes operator input, the sampling cadence,
// and continuous-mode sensor output in a single goroutine, so at most one
// sensor query is ever being composed at a time.
func (c *Console) Run(ctx context.Context) error {
	c.configureOutputs(ctx)
	c.printBanner()

	input := make(chan []byte, 4)
	go func() {
		defer close(input)
		buf := make([]byte, 64)
		for {
			n, err := c.in.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case input <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	c.ticker = time.NewTicker(c.sess.Period)
	defer func() {
		c.ticker.Stop()
		c.ticker = nil
	}()

	// Unterminated input pending dispatch, and its idle deadline.
	var pending []byte
	idle := time.NewTimer(idleGrace)
	idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case chunk, ok := <-input:
			if !ok {
				if len(pending) > 0 {
					c.Exec(ctx, string(pending))
				}
				return nil
			}
			for _, b := range chunk {
				if b == '\n' || b == '\r' {
					line := string(pending)
					pending = pending[:0]
					idle.Stop()
					c.Exec(ctx, line)
					continue
				}
				pending = append(pending, b)
			}
			if len(pending) > 0 {
				idle.Reset(idleGrace)
			}

		case <-idle.C:
			if len(pending) > 0 {
				line := string(pending)
				pending = pending[:0]
				c.Exec(ctx, line)
			}

		case <-c.ticker.C:
			if c.sess.Streaming {
				c.sample(ctx)
			}

		case line := <-c.dev.Unsolicited():
			c.handleAsync(line)
		}
	}
}

// Exec interprets one operator line. Unknown verbs and malformed arguments
// produce a corrective message and leave all session state unchanged.
func (c *Console) Exec(ctx context.Context, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	verb, rest, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)
	rest = strings.TrimSpace(rest)

	switch verb {
	case "help":
		c.printHelp()
	case "r":
		c.query(ctx, ezo.CmdRead, readTimeout)
	case "t":
		c.execTemp(ctx, rest)
	case "cal":
		c.execCal(ctx, rest)
	case "o":
		c.execOutput(ctx, rest)
	case "stream":
		c.execStream(ctx, rest)
	case "period":
		c.execPeriod(rest)
	case "raw":
		c.execRaw(rest)
	case "i":
		c.query(ctx, ezo.CmdInfo, infoTimeout)
	case "status":
		c.query(ctx, ezo.CmdStatus, statusTimeout)
	case "led":
		c.execLed(ctx, rest)
	case "factory":
		c.query(ctx, ezo.CmdFactory, factoryTimeout)
	case "sleep":
		c.query(ctx, ezo.CmdSleep, sleepTimeout)
	case "c":
		c.execCont(ctx, rest)
	case "k":
		c.execCell(ctx, rest)
	default:
		c.printf("[cli] unknown command: %s", line)
	}
}

func (c *Console) execTemp(ctx context.Context, rest string) {
	if rest == "?" {
		c.query(ctx, ezo.CmdTempQuery, tempTimeout)
		return
	}
	tc, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		c.printf("[t] usage: t <°C> | t ?  e.g. t 25.0")
		return
	}
	c.query(ctx, fmt.Sprintf("T,%.2f", tc), tempTimeout)
}

// execCal handles the calibration sub-grammar. A bare numeric value
// auto-selects the calibration point by magnitude: up to 200 µS/cm is the
// low point, up to 3000 the mid point, anything above the high point.
func (c *Console) execCal(ctx context.Context, rest string) {
	sub, val, _ := strings.Cut(rest, " ")
	sub = strings.ToLower(sub)
	val = strings.TrimSpace(val)

	switch sub {
	case "clear":
		c.query(ctx, ezo.CmdCalClear, calClearTimeout)
	case "dry":
		c.query(ctx, ezo.CmdCalDry, calDryTimeout)
	case "?":
		c.query(ctx, ezo.CmdCalQuery, calQueryTimeout)
	case "low", "mid", "high":
		if val == "" {
			c.printf("[cal] missing value in µS/cm, e.g. cal low 84.0")
			return
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			c.printf("[cal] invalid value %q, e.g. cal %s 84.0", val, sub)
			return
		}
		c.query(ctx, fmt.Sprintf("Cal,%s,%.2f", sub, f), calPointTimeout)
	default:
		if sub == "" || !leadsNumber(sub) {
			c.printf("[cal] unknown subcommand, use clear|dry|low|mid|high|? or cal <µS/cm>")
			return
		}
		f, err := strconv.ParseFloat(sub, 64)
		if err != nil {
			c.printf("[cal] invalid value %q, e.g. cal 1413", sub)
			return
		}
		mode := "high"
		switch {
		case f <= 200:
			mode = "low"
		case f <= 3000:
			mode = "mid"
		}
		c.query(ctx, fmt.Sprintf("Cal,%s,%.2f", mode, f), calPointTimeout)
	}
}

func leadsNumber(s string) bool {
	return s[0] == '+' || s[0] == '-' || (s[0] >= '0' && s[0] <= '9')
}

func (c *Console) execOutput(ctx context.Context, rest string) {
	if rest == "?" {
		c.query(ctx, ezo.CmdOutputs, outputTimeout)
		return
	}

	ch, onoff, _ := strings.Cut(rest, " ")
	ch = strings.ToLower(ch)
	onoff = strings.ToLower(strings.TrimSpace(onoff))

	var en int
	switch onoff {
	case "on":
		en = 1
	case "off":
		en = 0
	default:
		c.printf("[o] use on|off, e.g. o ec on")
		return
	}

	switch ch {
	case "ec", "tds", "sal", "sg":
		c.query(ctx, fmt.Sprintf("O,%s,%d", strings.ToUpper(ch), en), outputTimeout)
	default:
		c.printf("[o] unknown channel, use ec|tds|sal|sg")
	}
}

func (c *Console) execStream(ctx context.Context, rest string) {
	switch strings.ToLower(rest) {
	case "on":
		resume := !c.sess.Streaming
		c.sess.Streaming = true
		c.printf("[stream] ON")
		if resume {
			if c.ticker != nil {
				c.ticker.Reset(c.sess.Period)
			}
			c.sample(ctx)
		}
	case "off":
		c.sess.Streaming = false
		c.printf("[stream] OFF")
	default:
		c.printf("[stream] use: stream on|off")
	}
}

func (c *Console) execPeriod(rest string) {
	ms, err := strconv.Atoi(rest)
	if err != nil || ms <= 0 {
		c.printf("[period] must be > 0 ms")
		return
	}
	c.sess.Period = time.Duration(ms) * time.Millisecond
	if c.ticker != nil {
		c.ticker.Reset(c.sess.Period)
	}
	c.printf("[period] %d ms", ms)
}

func (c *Console) execRaw(rest string) {
	switch strings.ToLower(rest) {
	case "on":
		c.sess.PrintRaw = true
		c.printf("[raw] ON")
	case "off":
		c.sess.PrintRaw = false
		c.printf("[raw] OFF")
	default:
		c.printf("[raw] use: raw on|off")
	}
}

func (c *Console) execLed(ctx context.Context, rest string) {
	switch strings.ToLower(rest) {
	case "on":
		c.query(ctx, ezo.CmdLedOn, ledTimeout)
	case "off":
		c.query(ctx, ezo.CmdLedOff, ledTimeout)
	default:
		c.printf("[led] use: led on|off")
	}
}

func (c *Console) execCont(ctx context.Context, rest string) {
	switch strings.ToLower(rest) {
	case "on":
		c.query(ctx, ezo.CmdContOn, contTimeout)
	case "off":
		c.query(ctx, ezo.CmdContOff, contTimeout)
	default:
		c.printf("[c] use: c on|off")
	}
}

func (c *Console) execCell(ctx context.Context, rest string) {
	if rest == "?" {
		c.query(ctx, ezo.CmdCellQuery, cellQueryTimeout)
		return
	}
	kv, err := strconv.ParseFloat(rest, 64)
	if err != nil || kv == 0 {
		c.printf("[k] use 0.1 | 1.0 | 10.0")
		return
	}
	c.query(ctx, fmt.Sprintf("K,%.1f", kv), cellSetTimeout)
}

// configureOutputs runs the one-time output setup: the EC channel stays
// enabled and the circuit's own TDS/SAL/SG outputs are disabled, since the
// bridge derives TDS and salinity itself from fixed factors.
func (c *Console) configureOutputs(ctx context.Context) {
	if c.sess.OutputsConfigured {
		return
	}
	for _, cmd := range []string{"O,EC,1", "O,TDS,0", "O,SAL,0", "O,SG,0"} {
		c.query(ctx, cmd, setupTimeout)
	}
	c.sess.OutputsConfigured = true
	c.printf("[config] outputs configured: EC ON, TDS/SAL/SG OFF.")
}

// query sends one wire command and echoes both the command and its reply
// (or an explicit timeout marker) to the operator. The echo happens for
// every query; the raw dump during sampling is a separate, additional knob.
func (c *Console) query(ctx context.Context, cmd string, timeout time.Duration) string {
	c.printf("[ezo] send: %s", cmd)
	reply, err := c.dev.Query(ctx, cmd, timeout)
	if err != nil {
		c.log.Error("query failed", "cmd", cmd, "error", err)
		c.printf("[ezo] error: %v", err)
		return ""
	}
	if reply == "" {
		c.printf("[ezo] reply: (timeout)")
	} else {
		c.printf("[ezo] reply: %s", reply)
	}
	return reply
}

// sample performs one periodic sampling cycle: query a reading, optionally
// dump the raw reply, and print the interpreted values.
func (c *Console) sample(ctx context.Context) {
	line := c.query(ctx, ezo.CmdRead, sampleTimeout)
	if c.sess.PrintRaw {
		c.printf("[ezo] raw: %s", line)
	}

	switch ezo.Classify(line) {
	case ezo.TypeEmpty:
		c.printf("[read] (timeout)")
	case ezo.TypeAck:
		// configuration acknowledgement, not a reading
	case ezo.TypeData:
		r, ok := ezo.ParseReading(line)
		if !ok {
			c.printf("[read] uninterpretable reply: %s", line)
			return
		}
		c.printReading(r)
	}
}

// handleAsync interprets a line the circuit sent on its own (continuous
// mode). Timeouts cannot occur here; everything else mirrors sample.
func (c *Console) handleAsync(line string) {
	if c.sess.PrintRaw {
		c.printf("[ezo] raw: %s", line)
	}
	if ezo.Classify(line) != ezo.TypeData {
		return
	}
	r, ok := ezo.ParseReading(line)
	if !ok {
		c.printf("[read] uninterpretable reply: %s", line)
		return
	}
	c.printReading(r)
}

// printReading shows EC plus the derived estimates. TDS and SAL are rough
// linear approximations, not sensor-reported values. SG is only shown when
// the reply carried an explicit SG label.
func (c *Console) printReading(r ezo.Reading) {
	c.printf("[read] interpretation:")
	c.printf("  EC: %.6f µS/cm", r.EC)
	c.printf("  TDS≈: %.1f ppm", ezo.DeriveTDS(r.EC))
	c.printf("  SAL≈: %.1f ppm", ezo.DeriveSalinity(r.EC))
	if r.HasSG {
		c.printf("  SG: %.6f", r.SG)
	} else {
		c.printf("  SG: n/a")
	}
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\r\n", args...)
}

func (c *Console) printBanner() {
	c.printf("[help] available commands (finish with Enter):")
	c.printf("  help                 -> show this help")
	c.printf("  r                    -> immediate reading (EZO R)")
	c.printf("  t <C>                -> temperature compensation, e.g. t 25.0")
	c.printf("  t ?                  -> query current temperature compensation")
	c.printf("  cal clear            -> erase calibration")
	c.printf("  cal dry              -> dry calibration (EC sensor)")
	c.printf("  cal low <µS/cm>      -> low point, e.g. cal low 84.0")
	c.printf("  cal mid <µS/cm>      -> mid point, e.g. cal mid 1413")
	c.printf("  cal high <µS/cm>     -> high point, e.g. cal high 12880")
	c.printf("  cal <µS/cm>          -> shortcut: picks the point by magnitude")
	c.printf("  cal ?                -> query calibration state")
	c.printf("  k <0.1|1.0|10.0>     -> set probe cell constant")
	c.printf("  k ?                  -> query current cell constant")
	c.printf("  o ec|tds|sal|sg on|off -> toggle labeled output channel")
	c.printf("  o ?                  -> query output state")
	c.printf("  stream on|off        -> enable/disable periodic readings")
	c.printf("  period <ms>          -> set sampling period (default 1000)")
	c.printf("  raw on|off           -> also show the verbatim EZO reply")
	c.printf("  i                    -> device information")
	c.printf("  status               -> device status")
	c.printf("  led on|off           -> module LED")
	c.printf("  factory              -> factory reset (erases calibration)")
	c.printf("  sleep                -> low power (wakes on reset)")
	c.printf("  c on|off             -> EZO continuous mode (not recommended with stream)")
}

func (c *Console) printHelp() {
	c.printf("[help] commands: help, r, t <C>, cal clear|dry|low|mid|high <v>, cal ?, o <channel> on|off, stream on|off, period <ms>, raw on|off, i, status, led on|off, factory, sleep, c on|off, k <v>")
}
