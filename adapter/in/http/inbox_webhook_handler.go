package http

import (
	"encoding/base64"
	"strconv"

	"inbox_server/core/port/in"
	"inbox_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// ============================================================================
// Gmail push webhook
// ============================================================================

// GmailPushNotification is the Pub/Sub push envelope Google delivers.
type GmailPushNotification struct {
	Message struct {
		Data        string `json:"data"` // base64-encoded JSON payload
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// gmailPushPayload is the decoded inner payload.
type gmailPushPayload struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

type WebhookHandler struct {
	syncService in.SyncService
	verifyToken string
}

func NewWebhookHandler(syncService in.SyncService, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		syncService: syncService,
		verifyToken: verifyToken,
	}
}

func (h *WebhookHandler) Register(app fiber.Router) {
	app.Post("/webhooks/gmail", h.GmailPush)
}

// GmailPush receives Pub/Sub push notifications for Gmail mailbox changes.
// Always returns 200: a non-2xx response makes Pub/Sub redeliver, and a
// malformed notification will never become well-formed on retry.
func (h *WebhookHandler) GmailPush(c *fiber.Ctx) error {
	if h.verifyToken != "" && c.Query("token") != h.verifyToken {
		logger.Warn("[Webhook] Gmail push with invalid verify token")
		return c.SendStatus(fiber.StatusOK)
	}

	var notification GmailPushNotification
	if err := c.BodyParser(&notification); err != nil {
		logger.WithError(err).Warn("[Webhook] Failed to parse Pub/Sub envelope")
		return c.SendStatus(fiber.StatusOK)
	}

	if notification.Message.Data == "" {
		logger.Warn("[Webhook] Pub/Sub message has no data")
		return c.SendStatus(fiber.StatusOK)
	}

	// Pub/Sub documents url-safe base64 but delivers standard in practice.
	decoded, err := base64.StdEncoding.DecodeString(notification.Message.Data)
	if err != nil {
		decoded, err = base64.URLEncoding.DecodeString(notification.Message.Data)
	}
	if err != nil {
		logger.WithError(err).Warn("[Webhook] Failed to decode Pub/Sub data")
		return c.SendStatus(fiber.StatusOK)
	}

	var payload gmailPushPayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		logger.WithError(err).Warn("[Webhook] Failed to unmarshal push payload")
		return c.SendStatus(fiber.StatusOK)
	}

	if payload.EmailAddress == "" {
		logger.Warn("[Webhook] Push payload missing emailAddress")
		return c.SendStatus(fiber.StatusOK)
	}

	receipt, err := h.syncService.HandlePushNotification(c.Context(), payload.EmailAddress, payload.HistoryID)
	if err != nil {
		logger.WithError(err).Error("[Webhook] HandlePushNotification failed for %s", payload.EmailAddress)
		return c.SendStatus(fiber.StatusOK)
	}

	logger.Info("[Webhook] Gmail push for %s history=%s status=%s",
		payload.EmailAddress, strconv.FormatUint(payload.HistoryID, 10), receipt.Status)
	return c.Status(fiber.StatusOK).JSON(receipt)
}
