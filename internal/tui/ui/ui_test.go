package ui

import (
	"errors"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func TestFlashExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	if f.Current() != nil {
		t.Fatal("new flash model should be empty")
	}
	f.Err(errors.New("send failed"))
	msg := f.Current()
	if msg == nil || msg.Text != "send failed" || msg.Level != FlashErr {
		t.Fatalf("Current() = %+v", msg)
	}
	select {
	case got := <-f.Watch():
		if got.Text != "send failed" {
			t.Errorf("Watch() = %q", got.Text)
		}
	default:
		t.Error("Watch() did not receive the message")
	}

	now = now.Add(9 * time.Second)
	if f.Current() != nil {
		t.Error("flash did not expire")
	}
}

func TestFlashWatchKeepsLatest(t *testing.T) {
	f := NewFlashModel()
	f.Info("one")
	f.Warn("two")
	if got := <-f.Watch(); got.Text != "two" || got.Level != FlashWarn {
		t.Errorf("Watch() = %+v, want the latest message", got)
	}
}

func TestCompleteCommand(t *testing.T) {
	names := []string{"archive", "archived", "mute", "name"}
	tests := []struct {
		text string
		want []string
	}{
		{"ar", []string{"archive", "archived"}},
		{"archive", []string{"archived"}},
		{"MU", []string{"mute"}},
		{"name bob", nil},
		{"", nil},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := CompleteCommand(names, tt.text)
		if len(got) != len(tt.want) {
			t.Errorf("CompleteCommand(%q) = %v, want %v", tt.text, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("CompleteCommand(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestPagesStack(t *testing.T) {
	p := NewPages()
	for _, name := range []string{"a", "b", "c"} {
		name := name
		p.Register(name, tview.NewBox(), func() string { return "title-" + name })
	}
	var changes int
	p.SetOnChange(func([]string) { changes++ })

	p.Reset("a")
	p.Push("b")
	p.Push("b")
	p.Push("c")
	if got := p.Titles(); len(got) != 3 || got[2] != "title-c" {
		t.Errorf("Titles() = %v", got)
	}
	if !p.Contains("b") || p.Contains("z") {
		t.Error("Contains() wrong")
	}
	if top := p.Pop(); top != "c" || p.Current() != "b" {
		t.Errorf("Pop() = %q, Current() = %q", top, p.Current())
	}
	p.Pop()
	if top := p.Pop(); top != "" || p.Current() != "a" {
		t.Errorf("root page popped: %q", top)
	}
	if changes != 4 {
		t.Errorf("onChange fired %d times, want 4", changes)
	}
}

func TestColorTag(t *testing.T) {
	if got := ColorTag(tcell.ColorOrangeRed); got != "orangered" {
		t.Errorf("ColorTag(orangered) = %q", got)
	}
	if got := ColorTag(tcell.NewHexColor(0x123456)); got != "#123456" {
		t.Errorf("ColorTag(hex) = %q", got)
	}
}
