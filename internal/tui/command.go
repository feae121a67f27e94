package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/matheus3301/dmsync/internal/model"
	"github.com/matheus3301/dmsync/internal/tui/views"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// Outcome is what the shell does after a command ran.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeQuit
	OutcomeHelp
	OutcomeToggleArchived
	// OutcomeLeave closes the conversation the command acted on.
	OutcomeLeave
)

var (
	errUnknownCommand = errors.New("unknown command")
	errNoConversation = errors.New("no conversation selected")
)

// commandEnv is what a command acts on. target is the open conversation, or
// the one under the cursor in the list.
type commandEnv struct {
	core   Backend
	auth   Auth
	target string
}

type commandDef struct {
	name         string
	usage        string
	description  string
	conversation bool
	run          func(ctx context.Context, env commandEnv, args string) (Outcome, error)
}

var commands = []commandDef{
	{name: "archive", description: "archive the conversation", conversation: true,
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeLeave, env.core.ArchiveConversation(ctx, env.target)
		}},
	{name: "unarchive", description: "move the conversation back to the inbox", conversation: true,
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeLeave, env.core.UnarchiveConversation(ctx, env.target)
		}},
	{name: "mute", description: "mute the conversation", conversation: true,
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeNone, env.core.MuteConversation(ctx, env.target)
		}},
	{name: "unmute", description: "unmute the conversation", conversation: true,
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeNone, env.core.UnmuteConversation(ctx, env.target)
		}},
	{name: "read", description: "mark the conversation as read", conversation: true,
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeNone, env.core.MarkMessagesAsRead(ctx, env.target)
		}},
	{name: "delete", description: "delete the conversation and its messages", conversation: true,
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeLeave, env.core.DeleteConversation(ctx, env.target)
		}},
	{name: "name", usage: "<display name>", description: "change your display name",
		run: func(ctx context.Context, env commandEnv, args string) (Outcome, error) {
			_, err := env.core.UpdateProfile(ctx, model.ProfileUpdate{DisplayName: &args})
			return OutcomeNone, err
		}},
	{name: "photo", usage: "<url>", description: "change your photo URL",
		run: func(ctx context.Context, env commandEnv, args string) (Outcome, error) {
			_, err := env.core.UpdateProfile(ctx, model.ProfileUpdate{PhotoURL: &args})
			return OutcomeNone, err
		}},
	{name: "archived", description: "toggle the archived list",
		run: func(context.Context, commandEnv, string) (Outcome, error) {
			return OutcomeToggleArchived, nil
		}},
	{name: "logout", description: "sign out",
		run: func(ctx context.Context, env commandEnv, _ string) (Outcome, error) {
			return OutcomeNone, env.auth.SignOut(ctx)
		}},
	{name: "help", description: "show keys and commands",
		run: func(context.Context, commandEnv, string) (Outcome, error) {
			return OutcomeHelp, nil
		}},
	{name: "quit", description: "exit dmtui",
		run: func(context.Context, commandEnv, string) (Outcome, error) {
			return OutcomeQuit, nil
		}},
}

// CommandNames returns every command name, for completion.
func CommandNames() []string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = c.name
	}
	return names
}

func lookupCommand(name string) (commandDef, bool) {
	if name == "q" {
		name = "quit"
	}
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return commandDef{}, false
}

func (c commandDef) check(env commandEnv, cmd Command) error {
	if c.usage != "" && cmd.Args == "" {
		return fmt.Errorf("usage: :%s %s", c.name, c.usage)
	}
	if c.conversation && env.target == "" {
		return fmt.Errorf(":%s: %w", c.name, errNoConversation)
	}
	return nil
}

// runCommand parses input and executes it against env.
func runCommand(ctx context.Context, env commandEnv, input string) (Outcome, error) {
	cmd := ParseCommand(input)
	if cmd.Name == "" {
		return OutcomeNone, nil
	}
	def, ok := lookupCommand(cmd.Name)
	if !ok {
		return OutcomeNone, fmt.Errorf("%w: %s", errUnknownCommand, cmd.Name)
	}
	if err := def.check(env, cmd); err != nil {
		return OutcomeNone, err
	}
	return def.run(ctx, env, cmd.Args)
}

func commandHelp() []views.HelpEntry {
	out := make([]views.HelpEntry, len(commands))
	for i, c := range commands {
		key := ":" + c.name
		if c.usage != "" {
			key += " " + c.usage
		}
		out[i] = views.HelpEntry{Key: key, Description: c.description}
	}
	return out
}
