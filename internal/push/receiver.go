package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/clinicedge/clinicedge/internal/notify"
)

// Listen runs the message receiver until ctx is cancelled. It long-polls the
// push service for payloads addressed to this installation's token and hands
// each one to HandleMessage. The loop only runs when registration succeeded.
func (c *Client) Listen(ctx context.Context) {
	if c.status != StatusActive || c.token == "" {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := c.poll(ctx)
		if !ok {
			// quiet backoff between failed or empty polls
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.HandleMessage(ctx, msg)
	}
}

func (c *Client) poll(ctx context.Context) (Message, bool) {
	endpoint := c.cfg.Endpoint + "/v1/messages?token=" + url.QueryEscape(c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Message{}, false
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Message{}, false
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return Message{}, false
	}
	return msg, true
}

// HandleMessage delivers one push payload.
//
// Foreground: routed to the in-page sink only; the socket channel owns the
// dual in-page+system behavior, the push foreground path deliberately stays
// in-page.
// Background: shown as a system notification; the in-page sink is not
// reachable without focus.
func (c *Client) HandleMessage(ctx context.Context, msg Message) {
	if c.foreground() {
		c.router.Publish(ctx, eventFromMessage(msg))
		return
	}

	if c.system == nil {
		return
	}
	if err := c.system.Notify(ctx, msg.Title(), msg.Body()); err != nil {
		c.log.Warn(ctx, "system notification failed", "error", err)
	}
}

// HandleNotificationClick reacts to the user activating a background
// notification: focus an open app window or open a new one, then dismiss.
func (c *Client) HandleNotificationClick(ctx context.Context) {
	if c.focuser == nil {
		return
	}
	if err := c.focuser.FocusOrOpen(ctx); err != nil {
		c.log.Warn(ctx, "failed to focus app window", "error", err)
	}
}

func eventFromMessage(msg Message) notify.Event {
	return notify.Event{
		Type:    notify.TypeInfo,
		Title:   msg.Title(),
		Message: msg.Body(),
		Data:    msg.Data,
	}
}
