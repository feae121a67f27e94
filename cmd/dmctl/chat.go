package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/dmsync/internal/chat"
	"github.com/matheus3301/dmsync/internal/model"
)

func newUsersCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, c *client) error {
				v, err := waitView(ctx, c.Core, func(v chat.ViewModel) (bool, error) {
					return settled(true, "directory", v.DirectoryStatus)
				})
				if err != nil {
					return err
				}
				return printUsers(chat.FilterDirectory(v.Directory, search))
			})
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "filter by name or email")
	return cmd
}

func newConversationsCmd() *cobra.Command {
	var archived bool
	var filter string
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"ls"},
		Short:   "List conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, c *client) error {
				return printConversations(c.Core.Self().ID, c.Core.FilterConversations(filter, archived))
			})
		},
	}
	cmd.Flags().BoolVarP(&archived, "archived", "a", false, "list archived conversations")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "filter by participant name or last message")
	return cmd
}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <email|user-id>",
		Short: "Open the conversation with a user, creating it if needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, c *client) error {
				v, err := waitView(ctx, c.Core, func(v chat.ViewModel) (bool, error) {
					return settled(true, "directory", v.DirectoryStatus)
				})
				if err != nil {
					return err
				}
				entry, err := resolveUser(v.Directory, args[0])
				if err != nil {
					return err
				}
				id, err := c.Core.StartConversation(ctx, entry)
				if err != nil {
					return err
				}
				if jsonOutput {
					return outputJSON(map[string]string{"conversationId": id})
				}
				fmt.Println(id)
				return nil
			})
		},
	}
}

func newMessagesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "messages <conversation-id>",
		Short: "Print the messages of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, c *client) error {
				v, err := openConversation(ctx, c, args[0])
				if err != nil {
					return err
				}
				msgs := v.Messages
				if limit > 0 && len(msgs) > limit {
					msgs = msgs[len(msgs)-limit:]
				}
				return printMessages(v.Self.ID, msgs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the last n messages")
	return cmd
}

func newSendCmd() *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text...>",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			return withCore(func(ctx context.Context, c *client) error {
				v, err := openConversation(ctx, c, args[0])
				if err != nil {
					return err
				}
				var reply *model.Message
				if replyTo != "" {
					m, ok := findMessage(v.Messages, replyTo)
					if !ok {
						return fmt.Errorf("message %s not found in %s", replyTo, args[0])
					}
					reply = &m
				}
				id, err := c.Core.SendMessage(ctx, text, reply)
				if err != nil && id == "" {
					return err
				}
				if err != nil {
					fmt.Fprintf(os.Stderr, "warning: message sent but conversation summary not updated: %v\n", err)
				}
				if jsonOutput {
					return outputJSON(map[string]string{"messageId": id})
				}
				fmt.Println(id)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&replyTo, "reply", "r", "", "id of the message to reply to")
	return cmd
}

func newDeleteMessageCmd() *cobra.Command {
	var permanent bool
	cmd := &cobra.Command{
		Use:   "delete-message <conversation-id> <message-id>",
		Short: "Delete a message, leaving a tombstone unless --permanent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, c *client) error {
				if _, err := openConversation(ctx, c, args[0]); err != nil {
					return err
				}
				if permanent {
					return c.Core.PermanentlyDeleteMessage(ctx, args[1])
				}
				return c.Core.DeleteMessage(ctx, args[1])
			})
		},
	}
	cmd.Flags().BoolVar(&permanent, "permanent", false, "remove the message instead of leaving a tombstone")
	return cmd
}

// newConversationFlagCmd builds the commands that take one conversation id.
func newConversationFlagCmd(use, short string, op func(*chat.Core, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <conversation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(func(ctx context.Context, c *client) error {
				if err := op(c.Core, ctx, args[0]); err != nil {
					return err
				}
				if !jsonOutput {
					fmt.Printf("%s: %s\n", use, args[0])
				}
				return nil
			})
		},
	}
}

// openConversation selects id and waits for its messages.
func openConversation(ctx context.Context, c *client, id string) (chat.ViewModel, error) {
	if err := c.Core.Select(ctx, id); err != nil {
		return chat.ViewModel{}, err
	}
	return waitView(ctx, c.Core, func(v chat.ViewModel) (bool, error) {
		return settled(v.ActiveConversationID == id, "messages", v.MessagesStatus)
	})
}

// resolveUser finds a directory entry by id or email, ignoring case.
func resolveUser(entries []model.DirectoryEntry, arg string) (model.DirectoryEntry, error) {
	for _, e := range entries {
		if e.ID == arg {
			return e, nil
		}
	}
	for _, e := range entries {
		if e.Email != "" && strings.EqualFold(e.Email, arg) {
			return e, nil
		}
	}
	return model.DirectoryEntry{}, fmt.Errorf("no user %q in the directory", arg)
}

func findMessage(msgs []model.Message, id string) (model.Message, bool) {
	for _, m := range msgs {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}

type userJSON struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	Online      bool      `json:"isOnline"`
	LastSeen    time.Time `json:"lastSeen,omitzero"`
}

func printUsers(entries []model.DirectoryEntry) error {
	if jsonOutput {
		out := make([]userJSON, len(entries))
		for i, e := range entries {
			out[i] = userJSON{ID: e.ID, DisplayName: e.DisplayName, Email: e.Email, Online: e.IsOnline, LastSeen: e.LastSeen}
		}
		return outputJSON(out)
	}
	w := newTable("ID", "NAME", "EMAIL", "ONLINE")
	for _, e := range entries {
		w.row(e.ID, e.Name(), e.Email, yesNo(e.IsOnline))
	}
	return w.flush()
}

type conversationJSON struct {
	ID              string    `json:"id"`
	With            string    `json:"with"`
	Name            string    `json:"name"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime,omitzero"`
	Unread          int       `json:"unread"`
	Muted           bool      `json:"muted"`
	Archived        bool      `json:"archived"`
}

func printConversations(self string, convs []model.Conversation) error {
	if jsonOutput {
		out := make([]conversationJSON, len(convs))
		for i, c := range convs {
			other := c.Other(self)
			out[i] = conversationJSON{
				ID:              c.ID,
				With:            other,
				Name:            c.DisplayName(other),
				LastMessage:     c.LastMessage,
				LastMessageTime: c.LastMessageTime,
				Unread:          c.UnreadCount[self],
				Muted:           c.MutedBy[self],
				Archived:        c.ArchivedBy[self],
			}
		}
		return outputJSON(out)
	}
	w := newTable("ID", "WITH", "UNREAD", "LAST", "MESSAGE")
	for _, c := range convs {
		last := ""
		if !c.LastMessageTime.IsZero() {
			last = c.LastMessageTime.Local().Format("2006-01-02 15:04")
		}
		name := c.DisplayName(c.Other(self))
		if c.MutedBy[self] {
			name += " (muted)"
		}
		w.row(c.ID, name, fmt.Sprint(c.UnreadCount[self]), last, oneLine(c.LastMessage, 50))
	}
	return w.flush()
}

type messageJSON struct {
	ID        string          `json:"id"`
	SenderID  string          `json:"senderId"`
	Sender    string          `json:"senderName"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Status    string          `json:"status"`
	Deleted   bool            `json:"isDeleted"`
	ReplyTo   *model.ReplyRef `json:"replyTo,omitempty"`
}

func printMessages(self string, msgs []model.Message) error {
	if jsonOutput {
		out := make([]messageJSON, len(msgs))
		for i, m := range msgs {
			out[i] = messageJSON{
				ID:        m.ID,
				SenderID:  m.SenderID,
				Sender:    m.SenderName,
				Text:      m.Text,
				Timestamp: m.Timestamp,
				Status:    m.Status,
				Deleted:   m.IsDeleted,
				ReplyTo:   m.ReplyTo,
			}
		}
		return outputJSON(out)
	}
	for _, m := range msgs {
		fmt.Println(formatMessage(self, m))
	}
	return nil
}

// formatMessage renders one message as a single plain-text line.
func formatMessage(self string, m model.Message) string {
	sender := m.SenderName
	if m.SenderID == self {
		sender = "You"
	}
	if sender == "" {
		sender = model.UnknownName
	}
	text := m.Text
	if m.IsDeleted {
		text = model.TombstoneText
	} else if m.ReplyTo != nil {
		text = fmt.Sprintf("(re: %s) %s", oneLine(m.ReplyTo.Text, 30), text)
	}
	line := fmt.Sprintf("%s  %s  %s: %s", m.Timestamp.Local().Format("2006-01-02 15:04"), m.ID, sender, oneLine(text, 0))
	if m.SenderID == self && !m.IsDeleted && m.Status != "" {
		line += " [" + m.Status + "]"
	}
	return line
}

// oneLine flattens s to a single line, cut to n runes when n > 0.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); n > 0 && len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
