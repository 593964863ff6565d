package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/peercall/internal/call"
	"github.com/dkeye/peercall/internal/domain"
)

const help = `commands:
  call <id> [name]   call a party
  accept | reject    answer the ringing call
  end                hang up
  mic | cam          toggle microphone / camera
  status             show the current call
  quit`

// console is the line-oriented UI over a Machine.
type console struct {
	m       *call.Machine
	in      io.Reader
	out     io.Writer
	packets *packetCounter
}

func (c *console) run(ctx context.Context) error {
	last := domain.Idle
	c.m.OnChange(func(s call.Snapshot) {
		if s.State == last {
			return
		}
		last = s.State
		c.printState(s)
	})
	fmt.Fprintln(c.out, help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *console) exec(ctx context.Context, line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	var err error
	switch fields[0] {
	case "call":
		if len(fields) < 2 {
			fmt.Fprintln(c.out, "usage: call <id> [name]")
			return false
		}
		name := ""
		if len(fields) > 2 {
			name = strings.Join(fields[2:], " ")
		}
		var p domain.Party
		if p, err = domain.NewParty(fields[1], name); err == nil {
			err = c.m.RequestCall(ctx, p)
		}
	case "accept":
		err = c.m.AcceptIncoming(ctx)
	case "reject":
		err = c.m.RejectIncoming(ctx)
	case "end", "hangup":
		err = c.m.EndCall(ctx)
	case "mic":
		var on bool
		if on, err = c.m.ToggleMic(ctx); err == nil {
			fmt.Fprintf(c.out, "microphone %s\n", onOff(on))
		}
	case "cam":
		var on bool
		if on, err = c.m.ToggleCamera(ctx); err == nil {
			fmt.Fprintf(c.out, "camera %s\n", onOff(on))
		}
	case "status":
		c.printStatus(c.m.Snapshot())
	case "quit", "exit":
		return true
	default:
		fmt.Fprintln(c.out, help)
	}
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
	}
	return false
}

func (c *console) printState(s call.Snapshot) {
	switch s.State {
	case domain.RingingIncoming:
		fmt.Fprintf(c.out, "incoming call from %s (accept / reject)\n", s.Remote)
	case domain.Requesting:
		fmt.Fprintf(c.out, "calling %s...\n", s.Remote)
	case domain.Idle:
		if s.LastError != nil {
			fmt.Fprintf(c.out, "call ended: %s (%v)\n", s.EndReason, s.LastError)
		} else {
			fmt.Fprintf(c.out, "call ended: %s\n", s.EndReason)
		}
	default:
		fmt.Fprintf(c.out, "%s %s\n", s.State, s.Remote)
	}
}

func (c *console) printStatus(s call.Snapshot) {
	fmt.Fprintf(c.out, "self: %s\nstate: %s\n", s.Self, s.State)
	if s.State == domain.Idle {
		return
	}
	fmt.Fprintf(c.out, "remote: %s\ncall: %s\nmic: %s cam: %s\n", s.Remote, s.CallID, onOff(s.MicEnabled), onOff(s.CamEnabled))
	if c.packets != nil {
		fmt.Fprintf(c.out, "rtp in: audio=%d video=%d\n", c.packets.audio.Load(), c.packets.video.Load())
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
