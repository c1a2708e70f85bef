package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/Yarb/sunburn/governor"
)

// consoleEvent is one completed operator action, applied by the tick loop.
type eventKind int

const (
	eventSetMode eventKind = iota
	eventSetGains
	eventSetLimits
	eventSetTarget
	eventShowStatus
)

type consoleEvent struct {
	kind   eventKind
	mode   Mode
	gains  governor.Gains
	cpu    float64
	cores  int
	target float64
}

// promptState tracks where the operator is in a multi-step entry flow.
// Multi-step entry used to be nested blocking reads interleaved with the
// control loop; here each line advances a small state machine and only
// finished flows reach the controller.
type promptState int

const (
	promptIdle promptState = iota
	promptMode
	promptKp
	promptKi
	promptKd
	promptCPU
	promptCores
	promptTarget
)

// consoleState is the prompt flow state machine. Handle is pure with respect
// to I/O: it returns the events to emit and the lines to print, which keeps
// the whole flow unit-testable.
type consoleState struct {
	state promptState

	// partial entries for in-flight flows
	gains governor.Gains
	cpu   float64
}

const consoleHelp = `Commands:
  mode     - Select operating mode (automatic, manual limit, manual power)
  pid      - Adjust PID gains
  limits   - Switch to manual limit mode and enter CPU and core limits
  power    - Enter a manual power target (manual power mode)
  status   - Show controller state
  help     - Show this help
An empty line cancels any prompt.`

// Handle advances the state machine with one input line.
func (c *consoleState) Handle(line string) (events []consoleEvent, output []string) {
	line = strings.TrimSpace(line)

	// Empty input cancels an in-flight prompt, and at idle is a no-op.
	if line == "" {
		if c.state != promptIdle {
			c.state = promptIdle
			return nil, []string{"Cancelled"}
		}
		return nil, nil
	}

	switch c.state {
	case promptIdle:
		return c.handleCommand(line)

	case promptMode:
		switch strings.ToLower(line) {
		case "a":
			c.state = promptIdle
			return []consoleEvent{{kind: eventSetMode, mode: ModeAutomatic}}, nil
		case "l":
			// Manual limit entry continues straight into the limit values.
			c.state = promptCPU
			return []consoleEvent{{kind: eventSetMode, mode: ModeManualLimit}},
				[]string{"Input new limit values.", "Enter CPU limit (7-100)"}
		case "p":
			c.state = promptTarget
			return []consoleEvent{{kind: eventSetMode, mode: ModeManualPower}},
				[]string{"Input new power.", "Enter new power target"}
		default:
			return nil, []string{"Enter (a)utomatic, manual (l)imit entry or manual (p)ower entry"}
		}

	case promptKp:
		val, err := parseNumber(line)
		if err != nil {
			return nil, []string{err.Error(), "Enter new proportional value"}
		}
		c.gains.Kp = val
		c.state = promptKi
		return nil, []string{"Enter new integral value"}

	case promptKi:
		val, err := parseNumber(line)
		if err != nil {
			return nil, []string{err.Error(), "Enter new integral value"}
		}
		c.gains.Ki = val
		c.state = promptKd
		return nil, []string{"Enter new derivative value"}

	case promptKd:
		val, err := parseNumber(line)
		if err != nil {
			return nil, []string{err.Error(), "Enter new derivative value"}
		}
		c.gains.Kd = val
		c.state = promptIdle
		return []consoleEvent{{kind: eventSetGains, gains: c.gains}}, nil

	case promptCPU:
		val, err := parseNumber(line)
		if err != nil {
			return nil, []string{err.Error(), "Enter CPU limit (7-100)"}
		}
		c.cpu = val
		c.state = promptCores
		return nil, []string{"Enter core limit"}

	case promptCores:
		val, err := parseNumber(line)
		if err != nil {
			return nil, []string{err.Error(), "Enter core limit"}
		}
		c.state = promptIdle
		return []consoleEvent{{kind: eventSetLimits, cpu: c.cpu, cores: int(val)}}, nil

	case promptTarget:
		val, err := parseNumber(line)
		if err != nil {
			return nil, []string{err.Error(), "Enter new power target"}
		}
		c.state = promptIdle
		return []consoleEvent{{kind: eventSetTarget, target: val}}, nil
	}
	return nil, nil
}

func (c *consoleState) handleCommand(line string) ([]consoleEvent, []string) {
	switch strings.ToLower(line) {
	case "mode", "m":
		c.state = promptMode
		return nil, []string{"Select mode: (a)utomatic, manual (l)imit entry, manual (p)ower entry"}
	case "pid", "p":
		c.state = promptKp
		c.gains = governor.Gains{}
		return nil, []string{"Enter new proportional value"}
	case "limits", "l":
		// Direct entry only holds in manual limit mode; in automatic the
		// next gearbox activation would overwrite the values.
		c.state = promptCPU
		return []consoleEvent{{kind: eventSetMode, mode: ModeManualLimit}},
			[]string{"Switching to manual limit mode.", "Input new limit values.", "Enter CPU limit (7-100)"}
	case "power":
		c.state = promptTarget
		return nil, []string{"Input new power.", "Enter new power target"}
	case "status", "s":
		return []consoleEvent{{kind: eventShowStatus}}, nil
	case "help", "h":
		return nil, []string{consoleHelp}
	default:
		return nil, []string{fmt.Sprintf("Unknown command: %s (try 'help')", line)}
	}
}

func parseNumber(line string) (float64, error) {
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, errors.New("Given value is not a valid number")
	}
	return val, nil
}

// readlineWriter wraps log output to work with readline
type readlineWriter struct {
	rl *readline.Instance
}

func (w *readlineWriter) Write(p []byte) (n int, err error) {
	if w.rl != nil {
		w.rl.Clean()
	}
	n, err = os.Stderr.Write(p)
	if w.rl != nil {
		w.rl.Refresh()
	}
	return n, err
}

// Global readline writer for log output
var rlWriter = &readlineWriter{}

// getHistoryFilePath returns the path for console history
func getHistoryFilePath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "" // No history if we can't find home
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	sunburnCache := filepath.Join(cacheDir, "sunburn")
	_ = os.MkdirAll(sunburnCache, 0750)
	return filepath.Join(sunburnCache, "console_history")
}

// consoleWorker runs the operator console. Lines are read on a dedicated
// goroutine; completed operator actions are delivered to the tick loop
// through the events channel, so the loop itself never blocks on input.
func consoleWorker(ctx context.Context, cancel context.CancelFunc, events chan<- consoleEvent) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "> ",
		HistoryFile: getHistoryFilePath(),
	})
	if err != nil {
		log.Printf("Console: readline init failed: %v", err)
		return
	}
	defer func() {
		_ = rl.Close()
		rlWriter.rl = nil
	}()

	// Redirect log output through the readline-aware writer
	rlWriter.rl = rl
	log.SetOutput(rlWriter)

	log.Println("Console started (type 'help' for commands)")

	lineChan := make(chan string, 10)
	go func() {
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				cancel() // Ctrl+C, shut down the controller
				return
			}
			if err != nil {
				return // EOF or other error
			}
			select {
			case lineChan <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	state := &consoleState{}
	for {
		select {
		case line := <-lineChan:
			evs, output := state.Handle(line)
			for _, o := range output {
				rl.Clean()
				fmt.Println(o)
				rl.Refresh()
			}
			for _, ev := range evs {
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			log.Println("Console stopped")
			return
		}
	}
}
