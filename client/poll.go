package client

import (
	"context"
	"time"

	"github.com/kendall-kelly/atelier-api/models"
)

const (
	ConversationPollInterval = 5 * time.Second
	UnreadCountPollInterval  = 30 * time.Second
)

// Poll calls fn immediately and then on every tick until ctx is done.
// Errors from fn do not stop polling.
func Poll(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if ctx.Err() != nil {
		return
	}
	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// PollConversation refreshes a conversation every 5 seconds and hands each result to onUpdate
func (c *Client) PollConversation(ctx context.Context, token string, otherUserID uint, designID *uint, onUpdate func([]models.Message, error)) {
	Poll(ctx, ConversationPollInterval, func(ctx context.Context) {
		onUpdate(c.GetConversation(ctx, token, otherUserID, designID))
	})
}

// PollUnreadCount refreshes the unread message count every 30 seconds
func (c *Client) PollUnreadCount(ctx context.Context, token string, onUpdate func(int64, error)) {
	Poll(ctx, UnreadCountPollInterval, func(ctx context.Context) {
		onUpdate(c.GetUnreadCount(ctx, token))
	})
}
