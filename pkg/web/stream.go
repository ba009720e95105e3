package web

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukex/runledger/pkg/eventbus"
	"github.com/gofiber/fiber/v3"
)

// IssueSubscriptionToken issues a token for one channel and its topics. Asking
// again for the same scope before expiry is how a client refreshes.
func (h *APIHandlers) IssueSubscriptionToken(c fiber.Ctx) error {
	var req SubscriptionTokenRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	token, err := h.statusBus.Issuer().IssueSubscriptionToken(c.Context(), req.Channel, req.Topics)
	if err != nil {
		return handleTokenError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(token)
}

// RefreshSubscription extends a live stream with a newly issued token.
func (h *APIHandlers) RefreshSubscription(c fiber.Ctx) error {
	var req RefreshSubscriptionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	value, ok := h.streams.Load(c.Params("id"))
	if !ok {
		return notFound(c, "subscription_not_found", "subscription not found")
	}

	sub := value.(*eventbus.Subscription)

	if err := sub.Refresh(c.Context(), req.Token); err != nil {
		return handleTokenError(c, err)
	}

	return c.JSON(fiber.Map{
		"subscription_id": sub.ID(),
		"expires_at":      sub.ExpiresAt(),
	})
}

// StreamStatus attaches a subscription for the token and streams node status
// events as server-sent events until the client goes away.
func (h *APIHandlers) StreamStatus(c fiber.Ctx) error {
	tokenValue := c.Query("token")
	if tokenValue == "" {
		return unauthorized(c, "token is required")
	}

	sub, err := h.statusBus.Subscribe(c.Context(), tokenValue)
	if err != nil {
		return handleTokenError(c, err)
	}

	h.streams.Store(sub.ID(), sub)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.logger.With("subscription_id", sub.ID(), "channel", sub.Channel())

	c.RequestCtx().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer func() {
			h.streams.Delete(sub.ID())
			sub.Close()
			logger.Debug("Status stream closed")
		}()

		if err := writeEvent(w, "subscribed", fiber.Map{
			"subscription_id": sub.ID(),
			"channel":         sub.Channel(),
			"expires_at":      sub.ExpiresAt(),
		}); err != nil {
			return
		}

		heartbeat := time.NewTicker(h.heartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case event, ok := <-sub.Events():
				if !ok {
					return
				}

				if err := writeEvent(w, "status", event); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}

				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

func writeEvent(w *bufio.Writer, name string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body); err != nil {
		return err
	}

	return w.Flush()
}
