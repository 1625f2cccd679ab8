package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"skyshield/interceptor/internal/control"
	"skyshield/interceptor/internal/geom"
	"skyshield/interceptor/internal/logging"
)

// shellLoop runs the interactive operator shell until quit or input EOF. The
// return value reports whether the operator asked the daemon to exit, so a
// detached daemon with a closed stdin keeps running.
func (a *App) shellLoop(in io.Reader, out io.Writer) bool {
	sh := &shell{app: a, out: out}
	return sh.run(in)
}

type shell struct {
	app *App
	out io.Writer
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format+"\n", args...)
}

func (s *shell) run(in io.Reader) bool {
	scanner := bufio.NewScanner(in)
	s.printf("interceptor shell ready; type 'help' for commands")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		if cmd == "quit" || cmd == "exit" {
			s.printf("bye")
			return true
		}
		if err := s.dispatch(cmd, args); err != nil {
			s.printf("error: %v", err)
			continue
		}
		//1.- Successful mutating commands leave an audit trail in the session log.
		switch cmd {
		case "state", "targets", "help":
		default:
			s.app.publishSystem("command", line)
		}
	}
	if err := scanner.Err(); err != nil {
		s.app.log.Warn("shell input failed", logging.Error(err))
	}
	return false
}

func (s *shell) dispatch(cmd string, args []string) error {
	switch cmd {
	case "pos":
		v, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		s.app.world.SetDesiredPosition(geom.Vec3{X: v[0], Y: v[1], Z: v[2]})
		s.printf("goal position (%.3f, %.3f, %.3f)", v[0], v[1], v[2])

	case "ori":
		v, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		//1.- XYZ Euler angles compose as world-frame X, then Y, then Z.
		rot := geom.MulRot(geom.RotZ(v[2]), geom.MulRot(geom.RotY(v[1]), geom.RotX(v[0])))
		s.app.world.SetDesiredOrientation(rot)
		s.printf("goal orientation from euler (%.3f, %.3f, %.3f)", v[0], v[1], v[2])

	case "joint":
		v, err := parseFloats(args, s.app.chain.DOF())
		if err != nil {
			return err
		}
		s.app.world.SetDesiredJoint(v)
		s.printf("goal joints %v", v)

	case "move":
		v, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		s.app.world.Translate(geom.Vec3{X: v[0], Y: v[1], Z: v[2]})
		s.printf("goal nudged by (%.3f, %.3f, %.3f)", v[0], v[1], v[2])

	case "rot":
		v, err := parseFloats(args, 3)
		if err != nil {
			return err
		}
		s.app.world.Rotate(v[0], v[1], v[2])
		s.printf("goal rotated by (%.3f, %.3f, %.3f)", v[0], v[1], v[2])

	case "gains":
		return s.gains(args)

	case "friction":
		v, err := parseFloats(args, 1)
		if err != nil {
			return err
		}
		s.app.world.SetFriction(v[0])
		s.printf("friction damping %.3f", v[0])

	case "mode":
		if len(args) != 1 {
			return errors.New("usage: mode task|incremental|rmrc|joint")
		}
		mode, err := control.ParseMode(args[0])
		if err != nil {
			return err
		}
		s.app.world.SetMode(mode)
		s.printf("control mode %s", mode)

	case "sim":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: sim on|off")
		}
		if err := s.app.switchSimulation(args[0] == "on"); err != nil {
			return err
		}
		s.printf("simulation %s", args[0])

	case "pause":
		if s.app.world.TogglePaused() {
			s.printf("paused: holding against gravity, transitions frozen")
		} else {
			s.printf("resumed")
		}

	case "state":
		s.printf("%s", strings.TrimRight(s.app.world.Describe(), "\n"))
		realMs, simMs, offsetMs := s.app.clock.Snapshot()
		s.printf("clock real=%dms sim=%dms offset=%dms", realMs, simMs, offsetMs)

	case "targets":
		infos := s.app.tracks.Snapshot()
		if len(infos) == 0 {
			s.printf("no live tracks")
			return nil
		}
		for _, info := range infos {
			s.printf("track %d: samples=%d last_seen=%.3fs fit=%v residual=%.4f eligible=%v",
				info.ID, info.Samples, info.LastSeen, info.HasFit, info.Residual, info.Eligible)
		}

	case "help":
		s.printf("%s", helpText())

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

// gains prints the tuning block or sets a single named field.
func (s *shell) gains(args []string) error {
	g := s.app.world.Gains()
	if len(args) == 0 {
		s.printf("kp_pos=%.1f kv_pos=%.1f kp_ori=%.1f kv_ori=%.1f kp_joint=%.1f kv_joint=%.1f friction=%.2f",
			g.KpPos, g.KvPos, g.KpOri, g.KvOri, g.KpJoint, g.KvJoint, g.Friction)
		return nil
	}
	if len(args) != 2 {
		return errors.New("usage: gains [<field> <value>]")
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("gain value %q is not a number", args[1])
	}
	if err := g.SetByName(args[0], value); err != nil {
		return err
	}
	s.app.world.SetGains(g)
	s.printf("%s = %.3f", args[0], value)
	return nil
}

func parseFloats(args []string, want int) ([]float64, error) {
	if len(args) != want {
		return nil, fmt.Errorf("expected %d numbers, got %d", want, len(args))
	}
	out := make([]float64, want)
	for i, arg := range args {
		value, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", arg)
		}
		out[i] = value
	}
	return out, nil
}
