package main

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire protocol with the slaved machine: colon-delimited text.
// Outbound: "control:<cores>:<cpu_percent>", "status:" (poll), "shutdown:".
// Inbound:  "status:<cpu_percent_float>". Anything else is ignored.
const (
	msgStatusPoll = "status:"
	msgShutdown   = "shutdown:"
)

// encodeControl builds a control command carrying the current limits.
func encodeControl(cores, cpuPercent int) string {
	return fmt.Sprintf("control:%d:%d", cores, cpuPercent)
}

// decodeControl parses a control command as the client side does.
func decodeControl(raw string) (cores, cpuPercent int, err error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] != "control" {
		return 0, 0, fmt.Errorf("not a control command: %q", raw)
	}
	cores, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad core count in %q: %w", raw, err)
	}
	cpuPercent, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("bad cpu percent in %q: %w", raw, err)
	}
	return cores, cpuPercent, nil
}

type inboundKind int

const (
	inboundUnknown inboundKind = iota
	inboundStatus
)

// inboundMsg is the tagged variant decoded at the network boundary.
// Internal logic never inspects raw protocol strings.
type inboundMsg struct {
	kind   inboundKind
	cpuUse float64
}

// decodeInbound parses one inbound message. Unknown prefixes decode to an
// inboundUnknown value without error; a status message with an unparsable
// payload is reported as an error so the caller can log it and carry on
// with zero usage.
func decodeInbound(raw string) (inboundMsg, error) {
	parts := strings.Split(raw, ":")
	if parts[0] != "status" || len(parts) < 2 {
		return inboundMsg{kind: inboundUnknown}, nil
	}
	use, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return inboundMsg{kind: inboundUnknown}, fmt.Errorf("status payload %q is not a number", parts[1])
	}
	return inboundMsg{kind: inboundStatus, cpuUse: use}, nil
}
