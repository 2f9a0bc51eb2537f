// Package gateway orchestrates the webhook pipeline: it receives platform
// event deliveries, enforces per-user cooldowns, resolves attachments,
// requests a completion, and posts the reply back to the originating channel.
//
// Every delivery is acknowledged with HTTP 200 regardless of pipeline
// outcome. Anything else would make the platform redeliver the event and the
// pipeline would run twice.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	chloeerrors "github.com/chloebot/chloe/errors"
	"github.com/chloebot/chloe/server/completion"
	"github.com/chloebot/chloe/server/cooldown"
	"github.com/chloebot/chloe/server/extract"
	"github.com/chloebot/chloe/server/messaging"
	"github.com/chloebot/chloe/server/metrics"
	"github.com/chloebot/chloe/server/middleware"
	"github.com/chloebot/chloe/server/sanitize"
)

// ErrorReply is the fixed text posted to the channel when the pipeline fails
// after admission. Internal detail never reaches the channel.
const ErrorReply = "An error occurred while processing your request. Please try again."

// Handler is the webhook endpoint. All collaborators are injected so tests
// can substitute fakes.
type Handler struct {
	messenger messaging.Messenger
	completer completion.Completer
	extractor extract.Extractor
	cooldowns *cooldown.Tracker
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewHandler creates a gateway handler wired to its collaborators.
func NewHandler(
	messenger messaging.Messenger,
	completer completion.Completer,
	extractor extract.Extractor,
	cooldowns *cooldown.Tracker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		messenger: messenger,
		completer: completer,
		extractor: extractor,
		cooldowns: cooldowns,
		metrics:   m,
		logger:    logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	logger := h.logger.With(zap.String("request_id", requestID))

	var payload eventPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Debug("Discarding undecodable webhook body", zap.Error(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	if payload.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, payload.Challenge)
		return
	}

	ev := payload.Event
	if !ev.isUserMessage() {
		w.WriteHeader(http.StatusOK)
		return
	}

	logger = logger.With(
		zap.String("channel", ev.Channel),
		zap.String("user", ev.User),
	)

	// The reply must be posted even if the platform gives up on this HTTP
	// exchange, so the pipeline keeps the request's values but sheds its
	// cancellation.
	ctx := context.WithoutCancel(r.Context())

	if remaining := h.cooldowns.CheckAndArm(ev.User); remaining > 0 {
		h.metrics.CooldownRejections.Inc()
		h.metrics.DeliveriesTotal.WithLabelValues("rejected").Inc()
		secs := int(remaining.Round(time.Second).Seconds())
		logger.Info("Rejecting message on cooldown", zap.Int("remaining_seconds", secs))
		h.post(ctx, logger, ev.Channel,
			fmt.Sprintf("You're on cooldown. Please wait %d seconds.", secs))
		w.WriteHeader(http.StatusOK)
		return
	}

	prompt := ev.Text
	for _, file := range ev.Files {
		if file.Filetype != "pdf" {
			continue
		}
		text, err := h.extractor.ExtractText(ctx, file.URLPrivate)
		if err != nil {
			h.metrics.AttachmentsResolved.WithLabelValues("error").Inc()
			h.metrics.DeliveriesTotal.WithLabelValues("errored").Inc()
			chloeerrors.LogError(logger, err, requestID)
			h.post(ctx, logger, ev.Channel, ErrorReply)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.metrics.AttachmentsResolved.WithLabelValues("ok").Inc()
		prompt += " " + text
	}

	prompt = sanitize.Clean(prompt)

	reply, err := h.completer.Complete(ctx, prompt)
	outcome := "delivered"
	if err != nil {
		chloeerrors.LogError(logger, err, requestID)
		reply = ErrorReply
		outcome = "errored"
	}

	h.post(ctx, logger, ev.Channel, reply)

	// The cooldown window is anchored to delivery time, not admission time,
	// and re-arms whether the completion succeeded or not.
	h.cooldowns.Arm(ev.User)
	h.metrics.DeliveriesTotal.WithLabelValues(outcome).Inc()
	w.WriteHeader(http.StatusOK)
}

// post sends text to the channel. Posting failures are logged and swallowed;
// there is nothing further the pipeline can do with them.
func (h *Handler) post(ctx context.Context, logger *zap.Logger, channel, text string) {
	if err := h.messenger.PostMessage(ctx, channel, text); err != nil {
		logger.Error("Failed to post message", zap.Error(err))
	}
}
