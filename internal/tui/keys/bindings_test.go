package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestViewBindingsShadowGlobal(t *testing.T) {
	r := NewRegistry()
	var got []string
	r.AddGlobal(
		Rune('q', "Quit", func() { got = append(got, "global-q") }),
		Rune('?', "Help", func() { got = append(got, "help") }),
	)
	r.AddView("thread", Rune('q', "Back", func() { got = append(got, "thread-q") }))

	r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	r.HandleEvent("list", tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone))
	r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, '?', tcell.ModNone))
	if r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key reported as handled")
	}

	want := []string{"thread-q", "global-q", "help"}
	if len(got) != len(want) {
		t.Fatalf("handlers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handler[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	ran := false
	r.AddView("list", Key(tcell.KeyTab, "Tab", "Archived", func() { ran = true }))

	if r.HandleEvent("list", tcell.NewEventKey(tcell.KeyRune, 't', tcell.ModNone)) {
		t.Error("rune event matched a special-key action")
	}
	if !r.HandleEvent("list", tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)) || !ran {
		t.Error("Tab not handled")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(Rune('q', "Quit", func() {}))
	r.AddView("list",
		Rune('n', "New", func() {}),
		&Action{Key: tcell.KeyRune, Rune: 'j', Handler: func() {}},
		Rune('a', "Archive", func() {}),
	)

	hints := r.Hints("list")
	want := []string{"n", "a", "q"}
	if len(hints) != len(want) {
		t.Fatalf("Hints() = %v", hints)
	}
	for i, h := range hints {
		if h.Key != want[i] {
			t.Errorf("hint[%d] = %s, want %s", i, h.Key, want[i])
		}
	}
}
