package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
}

// Component is implemented by every page the app can push. Name is the
// breadcrumb title.
type Component interface {
	Name() string
}
