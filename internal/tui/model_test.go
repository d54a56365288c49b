package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/LeonardoBeccarini/pumpwatch/internal/model"
	"github.com/LeonardoBeccarini/pumpwatch/internal/model/messages"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/command"
	"github.com/LeonardoBeccarini/pumpwatch/internal/services/dashboard"
)

type fakeCommander struct {
	sent    []string
	reboots int
	err     error
}

func (f *fakeCommander) SendCommand(_ context.Context, name string) (messages.CommandResponse, error) {
	f.sent = append(f.sent, name)
	return messages.CommandResponse{"status": "ok"}, f.err
}

func (f *fakeCommander) Reboot(context.Context) (messages.RebootAck, error) {
	f.reboots++
	return messages.RebootAck{Message: command.RebootMessage}, f.err
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func connectedView() dashboard.DisplayState {
	snap := model.TelemetrySnapshot{Pressure: model.Float(3), MotorOn: model.Bool(true), ManualOverride: model.Bool(true)}
	return dashboard.Render(snap, model.Connectivity{Connected: true, Host: "pump.local"}, model.DefaultThresholds())
}

func TestKeysDisabledWhileDisconnected(t *testing.T) {
	fc := &fakeCommander{}
	disconnected := dashboard.Render(model.TelemetrySnapshot{}, model.Connectivity{}, model.DefaultThresholds())
	m := New(disconnected, fc, 0)

	for _, r := range []rune{'t', 'o'} {
		if _, cmd := m.Update(runeKey(r)); cmd != nil {
			t.Fatalf("key %q produced a command while disconnected", r)
		}
	}
	if len(fc.sent) != 0 {
		t.Fatalf("sent=%v", fc.sent)
	}
}

func TestToggleAndOverrideRunCommands(t *testing.T) {
	fc := &fakeCommander{}
	m := New(connectedView(), fc, 0)

	for _, r := range []rune{'t', 'o'} {
		updated, cmd := m.Update(runeKey(r))
		if cmd == nil {
			t.Fatalf("key %q: no command", r)
		}
		m = updated.(Model)
		updated, _ = m.Update(cmd())
		m = updated.(Model)
	}
	if strings.Join(fc.sent, ",") != "toggle,override" {
		t.Fatalf("sent=%v", fc.sent)
	}
	if m.status != "override: ok" || m.statusErr {
		t.Fatalf("status=%q err=%v", m.status, m.statusErr)
	}
}

func TestRebootWorksWhileDisconnected(t *testing.T) {
	fc := &fakeCommander{}
	m := New(dashboard.DisplayState{}, fc, 0)

	updated, cmd := m.Update(runeKey('r'))
	if cmd == nil {
		t.Fatal("no reboot command")
	}
	updated, _ = updated.(Model).Update(cmd())
	got := updated.(Model)
	if fc.reboots != 1 || got.status != command.RebootMessage {
		t.Fatalf("reboots=%d status=%q", fc.reboots, got.status)
	}
}

func TestCommandErrorShown(t *testing.T) {
	fc := &fakeCommander{err: errors.New("POST /command: device status 500")}
	m := New(connectedView(), fc, 0)

	_, cmd := m.Update(runeKey('t'))
	updated, _ := m.Update(cmd())
	got := updated.(Model)
	if !got.statusErr || !strings.Contains(got.status, "500") {
		t.Fatalf("status=%q err=%v", got.status, got.statusErr)
	}
}

func TestDisplayMsgReplacesView(t *testing.T) {
	m := New(dashboard.DisplayState{}, &fakeCommander{}, 0)
	updated, _ := m.Update(DisplayMsg(connectedView()))
	out := updated.(Model).View()
	for _, want := range []string{"pump.local", "3.00", "ON", "MANUAL"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestQuit(t *testing.T) {
	m := New(dashboard.DisplayState{}, &fakeCommander{}, 0)
	_, cmd := m.Update(runeKey('q'))
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q did not quit")
	}
}
