package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/flicky/telegram-shop-bot/internal/dto"
	"github.com/flicky/telegram-shop-bot/internal/model"
	"github.com/flicky/telegram-shop-bot/internal/telegram"
)

// UpdateHandler is the conversation core behind the webhook.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd model.Update) error
}

// UpdateGuard filters repeated deliveries of one update.
type UpdateGuard interface {
	Claim(ctx context.Context, updateID int64) (bool, error)
	Release(ctx context.Context, updateID int64)
}

type WebhookHandler struct {
	bot   UpdateHandler
	guard UpdateGuard
	log   *slog.Logger
}

func NewWebhookHandler(bot UpdateHandler, guard UpdateGuard, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{bot: bot, guard: guard, log: log}
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	var raw tgbotapi.Update
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	upd := telegram.ToUpdate(raw)
	log := h.log.With("update_id", upd.ID, "kind", upd.Kind())

	fresh, err := h.guard.Claim(ctx, upd.ID)
	if err != nil {
		// Without redis every update counts as fresh.
		log.Error("claim update", "error", err)
		fresh = true
	}
	if !fresh {
		log.Info("duplicate update, skipping")
		c.JSON(http.StatusOK, dto.WebhookResponse{OK: true})
		return
	}

	if err := h.bot.HandleUpdate(ctx, upd); err != nil {
		log.Error("handle update", "error", err)
		h.guard.Release(context.WithoutCancel(ctx), upd.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, dto.WebhookResponse{OK: true})
}
