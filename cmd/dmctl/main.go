// Command dmctl drives a dmsync session from scripts.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/matheus3301/dmsync/internal/app"
	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/config"
	"github.com/matheus3301/dmsync/internal/session"
	"github.com/matheus3301/dmsync/internal/status"
)

// Flag variables.
var (
	sessionFlag string
	jsonOutput  bool
	verbose     bool
	timeout     time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dmctl",
		Short:         "Scripting client for dmsync direct messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "mirror log lines to stderr")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "time limit for the whole command")

	root.AddCommand(
		newSignUpCmd(),
		newLoginCmd(),
		newLogoutCmd(),
		newWhoAmICmd(),
		newProfileCmd(),
		newUsersCmd(),
		newConversationsCmd(),
		newStartCmd(),
		newMessagesCmd(),
		newSendCmd(),
		newDeleteMessageCmd(),
		newConversationFlagCmd("archive", "Archive a conversation", (*chat.Core).ArchiveConversation),
		newConversationFlagCmd("unarchive", "Move a conversation back to the inbox", (*chat.Core).UnarchiveConversation),
		newConversationFlagCmd("mute", "Mute a conversation", (*chat.Core).MuteConversation),
		newConversationFlagCmd("unmute", "Unmute a conversation", (*chat.Core).UnmuteConversation),
		newConversationFlagCmd("read", "Mark a conversation as read", (*chat.Core).MarkMessagesAsRead),
		newConversationFlagCmd("delete", "Delete a conversation and its messages", (*chat.Core).DeleteConversation),
		newDBCmd(),
	)
	return root
}

// client is one started dmsync module.
type client struct {
	app.Components

	session string
	fx      *fx.App
}

// openClient loads the config, resolves the session and starts the module
// without the session lock.
func openClient(ctx context.Context) (*client, error) {
	config.LoadDotEnv("")
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	name := session.Resolve(sessionFlag, cfg)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}

	c := &client{session: name}
	c.fx = fx.New(
		app.Module(app.Params{SessionName: name, Config: cfg, Console: verbose}),
		fx.Populate(&c.Components),
		fx.NopLogger,
	)
	if err := c.fx.Start(ctx); err != nil {
		return nil, fmt.Errorf("start session %q: %w", name, err)
	}
	return c, nil
}

func (c *client) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.fx.Stop(ctx)
}

// withClient runs fn against a started client and a bounded context.
func withClient(fn func(ctx context.Context, c *client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c, err := openClient(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

var errNotSignedIn = errors.New("not signed in (run dmctl login)")

// withCore runs fn once the core is following the signed-in user and its
// conversation list has loaded.
func withCore(fn func(ctx context.Context, c *client) error) error {
	return withClient(func(ctx context.Context, c *client) error {
		if c.Identity.Current() == nil {
			return errNotSignedIn
		}
		runCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = c.Core.Run(runCtx)
		}()
		defer func() {
			stop()
			<-done
		}()

		if _, err := waitView(ctx, c.Core, func(v chat.ViewModel) (bool, error) {
			return settled(v.Self != nil, "conversations", v.ConversationsStatus)
		}); err != nil {
			return err
		}
		return fn(ctx, c)
	})
}

// waitView blocks until ready accepts the current view.
func waitView(ctx context.Context, core *chat.Core, ready func(chat.ViewModel) (bool, error)) (chat.ViewModel, error) {
	ch, unsub := core.Bus().Subscribe("view.", 1)
	defer unsub()
	for {
		v := core.View()
		ok, err := ready(v)
		if err != nil || ok {
			return v, err
		}
		select {
		case <-ctx.Done():
			return v, fmt.Errorf("waiting for data: %w", ctx.Err())
		case <-ch:
		}
	}
}

// settled reports whether a stream finished loading. A degraded stream is an
// error, not an empty result.
func settled(cond bool, name string, h chat.StreamHealth) (bool, error) {
	if !cond {
		return false, nil
	}
	switch h.State {
	case status.Live:
		return true, nil
	case status.Degraded:
		return false, fmt.Errorf("%s unavailable: %s", name, h.Err)
	}
	return false, nil
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
