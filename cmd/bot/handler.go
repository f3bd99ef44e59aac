package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"alertbot/internal/alert"
	"alertbot/internal/broker"
	"alertbot/internal/dashboard"
	"alertbot/internal/discord"
	"alertbot/internal/models"
)

// submitTimeout bounds a single bracket submission, token refresh included.
const submitTimeout = 30 * time.Second

// Handler turns inbound channel messages into bracket orders. Broker
// failures are logged and recorded but never stop the message stream.
type Handler struct {
	parser    *alert.Parser
	broker    broker.Broker
	recorder  *dashboard.Recorder
	logger    *logrus.Logger
	channelID string
	quantity  int

	wg sync.WaitGroup
}

func NewHandler(parser *alert.Parser, b broker.Broker, recorder *dashboard.Recorder, logger *logrus.Logger, channelID string, quantity int) *Handler {
	return &Handler{
		parser:    parser,
		broker:    b,
		recorder:  recorder,
		logger:    logger,
		channelID: channelID,
		quantity:  quantity,
	}
}

// HandleMessage runs on the gateway read loop: it filters and parses
// inline, then hands submission to a worker goroutine.
func (h *Handler) HandleMessage(msg discord.Message) {
	if msg.AuthorBot || msg.ChannelID != h.channelID {
		return
	}

	parsed, err := h.parser.Parse(msg.Content)
	if err != nil {
		if errors.Is(err, alert.ErrNoMatch) {
			h.logger.WithField("message_id", msg.ID).Debug("Message is not a trade alert")
			return
		}
		h.logger.WithError(err).WithField("message_id", msg.ID).Warn("Discarding malformed alert")
		h.recorder.Record(dashboard.AlertRecord{
			TraceID:    uuid.NewString(),
			ReceivedAt: time.Now(),
			Outcome:    dashboard.OutcomeMalformed,
			Error:      err.Error(),
		})
		return
	}

	traceID := uuid.NewString()
	h.logger.WithFields(logrus.Fields{
		"trace_id": traceID,
		"alert":    parsed.String(),
	}).Info("Parsed trade alert")

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.submit(traceID, parsed)
	}()
}

func (h *Handler) submit(traceID string, a *models.TradeAlert) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	ack, err := h.broker.SubmitBracketOrder(ctx, a, h.quantity)
	rec := dashboard.AlertRecord{
		TraceID:    traceID,
		ReceivedAt: time.Now(),
		Alert:      a,
	}
	if err != nil {
		h.logger.WithError(err).WithField("trace_id", traceID).Error("Bracket order submission failed")
		rec.Outcome = dashboard.OutcomeRejected
		rec.Error = err.Error()
		h.recorder.Record(rec)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"trace_id": traceID,
		"response": string(ack),
	}).Info("Bracket order accepted")
	rec.Outcome = dashboard.OutcomeSubmitted
	h.recorder.Record(rec)
}

// Wait blocks until all in-flight submissions finish.
func (h *Handler) Wait() {
	h.wg.Wait()
}
