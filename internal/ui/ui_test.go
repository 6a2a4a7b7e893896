package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/security"
)

type fakeController struct {
	mu        sync.Mutex
	info      model.SessionInfo
	running   bool
	startErr  error
	starts    int
	stops     int
	shutdowns int
}

func (f *fakeController) Start(context.Context) (model.SessionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return model.SessionInfo{}, f.startErr
	}
	f.running = true
	return f.info, nil
}

func (f *fakeController) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
	return nil
}

func (f *fakeController) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	f.running = false
	return nil
}

func (f *fakeController) Status() model.StatusSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return model.StatusSnapshot{}
	}
	return model.SnapshotOf(f.info)
}

func sampleInfo() model.SessionInfo {
	return model.SessionInfo{
		ID:        "s1",
		URL:       "https://quiet-river.trycloudflare.com/tok/",
		Username:  "calm-heron",
		Password:  "s3cret-pass",
		Port:      7681,
		StartedAt: time.Now(),
	}
}

func press(m dashboardModel, k string) (dashboardModel, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	return next.(dashboardModel), cmd
}

func update(m dashboardModel, msg tea.Msg) dashboardModel {
	next, _ := m.Update(msg)
	return next.(dashboardModel)
}

func TestStartKeyShowsSessionAndHidesCredentials(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	m := newDashboard(ctrl, nil, Options{})

	m, cmd := press(m, "s")
	if !m.starting || cmd == nil {
		t.Fatalf("expected starting state with a command")
	}
	if !strings.Contains(m.View(), "starting") {
		t.Fatalf("expected spinner view while starting:\n%s", m.View())
	}

	m, again := press(m, "s")
	if again != nil {
		t.Fatalf("second start while starting must be ignored")
	}

	msg := m.startCmd(context.Background())()
	m = update(m, msg)
	if m.starting || !m.snap.Running {
		t.Fatalf("expected running snapshot after start, got %+v", m.snap)
	}
	view := m.View()
	if !strings.Contains(view, sampleInfo().URL) {
		t.Fatalf("URL missing from view:\n%s", view)
	}
	if strings.Contains(view, "s3cret-pass") {
		t.Fatalf("password must be hidden by default:\n%s", view)
	}

	m, _ = press(m, "c")
	if !strings.Contains(m.View(), "s3cret-pass") {
		t.Fatalf("password should show after toggling credentials")
	}
	if ctrl.starts != 1 {
		t.Fatalf("expected one start, got %d", ctrl.starts)
	}
}

func TestStartFailureShowsUserMessage(t *testing.T) {
	ctrl := &fakeController{startErr: security.Classify(errors.New("exec: /home/u/bin/ttyd: not found"), "ttyd was not found")}
	m := newDashboard(ctrl, nil, Options{})
	m, _ = press(m, "s")
	m = update(m, m.startCmd(context.Background())())
	if m.snap.Running {
		t.Fatalf("failed start must not show running")
	}
	if !strings.Contains(m.status, "ttyd was not found") {
		t.Fatalf("unexpected status %q", m.status)
	}
	if strings.Contains(m.status, "/home/u") {
		t.Fatalf("debug detail leaked into status %q", m.status)
	}
}

func TestStopKey(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	m := newDashboard(ctrl, nil, Options{})

	if _, cmd := press(m, "x"); cmd != nil {
		t.Fatalf("stop with nothing running must be a no-op")
	}

	m = update(m, m.startCmd(context.Background())())
	m, cmd := press(m, "x")
	if !m.stopping || cmd == nil {
		t.Fatalf("expected stopping state")
	}
	m = update(m, m.stopCmd()())
	if m.snap.Running || ctrl.stops != 1 {
		t.Fatalf("expected stopped session, stops=%d", ctrl.stops)
	}
	if !strings.Contains(m.View(), "not sharing") {
		t.Fatalf("unexpected view:\n%s", m.View())
	}
}

func TestUnexpectedEndIsReported(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	m := newDashboard(ctrl, nil, Options{})
	m = update(m, m.startCmd(context.Background())())

	m = update(m, snapshotMsg(model.StatusSnapshot{}))
	if m.snap.Running {
		t.Fatalf("snapshot should mark the session stopped")
	}
	if !strings.Contains(m.status, "unexpectedly") {
		t.Fatalf("expected crash notice, got %q", m.status)
	}
}

func TestFailureSnapshotNamesExitedProcess(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	m := newDashboard(ctrl, nil, Options{})
	m = update(m, m.startCmd(context.Background())())

	// The tick can notice the stop before the failure event arrives.
	ctrl.mu.Lock()
	ctrl.running = false
	ctrl.mu.Unlock()
	m = update(m, tickMsg(time.Now()))

	m = update(m, snapshotMsg(model.StatusSnapshot{Failure: "cloudflared (pid 4242) exited: exit status 1"}))
	if !strings.Contains(m.status, "cloudflared (pid 4242) exited") {
		t.Fatalf("failure reason missing from status %q", m.status)
	}
}

func TestSnapshotsArriveFromUpdatesChannel(t *testing.T) {
	ch := make(chan model.StatusSnapshot, 1)
	m := newDashboard(&fakeController{}, ch, Options{})
	ch <- model.SnapshotOf(sampleInfo())

	msg := waitForSnapshot(ch)()
	m = update(m, msg)
	if !m.snap.Running {
		t.Fatalf("expected running snapshot from channel")
	}

	close(ch)
	if _, ok := waitForSnapshot(ch)().(updatesClosed); !ok {
		t.Fatalf("closed channel should yield updatesClosed")
	}
}

func TestQuitShutsDown(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	m := newDashboard(ctrl, nil, Options{ShutdownTimeout: time.Second})
	m = update(m, m.startCmd(context.Background())())

	m, cmd := press(m, "q")
	if !m.quitting || cmd == nil {
		t.Fatalf("expected quitting state")
	}
	_, quit := m.Update(m.shutdownCmd()())
	if ctrl.shutdowns != 1 {
		t.Fatalf("expected shutdown, got %d", ctrl.shutdowns)
	}
	if quit == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestQuitCancelsInFlightStart(t *testing.T) {
	m := newDashboard(&fakeController{}, nil, Options{})
	m, _ = press(m, "s")
	cancelled := false
	m.startCancel = func() { cancelled = true }
	m, _ = press(m, "q")
	if !cancelled {
		t.Fatalf("quit should cancel the pending start")
	}
}

func TestTickNoticesCrash(t *testing.T) {
	ctrl := &fakeController{info: sampleInfo()}
	m := newDashboard(ctrl, nil, Options{})
	m = update(m, m.startCmd(context.Background())())

	ctrl.mu.Lock()
	ctrl.running = false
	ctrl.mu.Unlock()
	m = update(m, tickMsg(time.Now()))
	if m.snap.Running || !strings.Contains(m.status, "unexpectedly") {
		t.Fatalf("tick should surface the crash, status=%q", m.status)
	}
}

func TestCopyKeyWritesShareText(t *testing.T) {
	var copied []string
	opts := Options{Clipboard: func(text string) error {
		copied = append(copied, text)
		return nil
	}}
	m := newDashboard(&fakeController{info: sampleInfo()}, nil, opts)

	m, _ = press(m, "y")
	if len(copied) != 0 {
		t.Fatalf("nothing to copy while idle, got %q", copied)
	}

	m = update(m, m.startCmd(context.Background())())
	m, _ = press(m, "y")
	if len(copied) != 1 || copied[0] != sampleInfo().URL {
		t.Fatalf("expected only the URL while credentials are hidden, got %q", copied)
	}

	m, _ = press(m, "c")
	m, _ = press(m, "y")
	want := sampleInfo().URL + "\nUsername: calm-heron\nPassword: s3cret-pass"
	if len(copied) != 2 || copied[1] != want {
		t.Fatalf("expected link and credentials, got %q", copied)
	}
	if !strings.Contains(m.status, "credentials") {
		t.Fatalf("unexpected status %q", m.status)
	}
}

func TestCopyFailureIsReported(t *testing.T) {
	opts := Options{Clipboard: func(string) error { return errors.New("no clipboard utility") }}
	m := newDashboard(&fakeController{info: sampleInfo()}, nil, opts)
	m = update(m, m.startCmd(context.Background())())
	m, _ = press(m, "y")
	if !strings.Contains(m.status, "no clipboard utility") {
		t.Fatalf("unexpected status %q", m.status)
	}
}
