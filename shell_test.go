package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"skyshield/interceptor/internal/control"
	"skyshield/interceptor/internal/events"
	"skyshield/interceptor/internal/geom"
)

func runShell(t *testing.T, app *App, script string) (string, bool) {
	t.Helper()
	var out bytes.Buffer
	quit := app.shellLoop(strings.NewReader(script), &out)
	return out.String(), quit
}

func TestShellSetsGoalsAndMode(t *testing.T) {
	app := newTestApp(t)

	out, quit := runShell(t, app, "pos 2.1 0.2 0.8\nmode task\nfriction 0.5\nquit\n")
	if !quit {
		t.Fatal("quit should ask the daemon to exit")
	}
	if !strings.Contains(out, "goal position (2.100, 0.200, 0.800)") {
		t.Fatalf("missing position echo in output:\n%s", out)
	}
	if !strings.Contains(out, "bye") {
		t.Fatalf("missing farewell in output:\n%s", out)
	}

	desired := app.world.Desired()
	if desired.Position != (geom.Vec3{X: 2.1, Y: 0.2, Z: 0.8}) {
		t.Fatalf("goal position not applied: %v", desired.Position)
	}
	if desired.Mode != control.ModeTaskSpace {
		t.Fatalf("mode not applied: %v", desired.Mode)
	}
	if g := app.world.Gains(); g.Friction != 0.5 {
		t.Fatalf("friction not applied: %v", g.Friction)
	}
}

func TestShellEOFKeepsDaemonRunning(t *testing.T) {
	app := newTestApp(t)

	if _, quit := runShell(t, app, "pause\n"); quit {
		t.Fatal("input EOF must not stop the daemon")
	}
	if !app.world.Paused() {
		t.Fatal("pause command not applied before EOF")
	}
}

func TestShellPauseTogglesBothWays(t *testing.T) {
	app := newTestApp(t)

	out, _ := runShell(t, app, "pause\npause\n")
	if !strings.Contains(out, "paused: holding against gravity") {
		t.Fatalf("missing pause echo:\n%s", out)
	}
	if !strings.Contains(out, "resumed") {
		t.Fatalf("missing resume echo:\n%s", out)
	}
	if app.world.Paused() {
		t.Fatal("double toggle should land on resumed")
	}
}

func TestShellRejectsBadInputAndKeepsGoing(t *testing.T) {
	app := newTestApp(t)

	out, _ := runShell(t, app, "warp 9\njoint 1 2\npos nope 0 0\nsim off\npos 2.2 0 0.6\n")
	for _, want := range []string{
		`unknown command "warp"`,
		"expected 6 numbers, got 2",
		`"nope" is not a number`,
		"no robot bridge configured",
		"goal position (2.200, 0.000, 0.600)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if got := app.world.Desired().Position; got != (geom.Vec3{X: 2.2, Z: 0.6}) {
		t.Fatalf("command after errors not applied: %v", got)
	}
}

func TestShellGainsShowAndSet(t *testing.T) {
	app := newTestApp(t)

	out, _ := runShell(t, app, "gains\ngains kp_pos 350\ngains bogus 1\n")
	if !strings.Contains(out, "kp_pos=400.0") {
		t.Fatalf("missing default gain dump:\n%s", out)
	}
	if !strings.Contains(out, "kp_pos = 350.000") {
		t.Fatalf("missing set echo:\n%s", out)
	}
	if !strings.Contains(out, `unknown gain "bogus"`) {
		t.Fatalf("missing unknown gain error:\n%s", out)
	}
	if g := app.world.Gains(); g.KpPos != 350 {
		t.Fatalf("kp_pos not applied: %v", g.KpPos)
	}
}

func TestShellStateAndTargets(t *testing.T) {
	app := newTestApp(t)

	out, _ := runShell(t, app, "state\ntargets\nhelp\n")
	if !strings.Contains(out, "clock real=") {
		t.Fatalf("missing clock line:\n%s", out)
	}
	if !strings.Contains(out, "no live tracks") {
		t.Fatalf("missing empty tracker line:\n%s", out)
	}
	if !strings.Contains(out, "stop the daemon") {
		t.Fatalf("missing help text:\n%s", out)
	}
}

func TestShellAuditsMutatingCommands(t *testing.T) {
	app := newTestApp(t)
	probe, err := app.stream.Subscribe(context.Background(), "probe", 32)
	if err != nil {
		t.Fatalf("subscribe probe: %v", err)
	}
	defer probe.Close()

	runShell(t, app, "state\npos 2.1 0 0.7\ntargets\n")

	var audits []string
	drained := false
	for !drained {
		select {
		case env := <-probe.Events():
			if env.Kind == events.KindSystem && env.System.Change == "command" {
				audits = append(audits, env.System.Detail)
			}
		default:
			drained = true
		}
	}
	if len(audits) != 1 || audits[0] != "pos 2.1 0 0.7" {
		t.Fatalf("want one audit for the mutating command, got %v", audits)
	}
}
