// Package worker runs the voice agent as a NATS request/reply service.
// Each message on the subject carries one operation envelope; the reply is
// the same JSON the one-shot job handler and the HTTP mode produce.
package worker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-agent/internal/core"
	"github.com/book-expert/voice-agent/internal/dispatcher"
)

// DefaultInlineAudioLimit is the largest base64 payload a reply carries
// inline. Bigger renders go to the object store and the reply carries the
// key instead.
const DefaultInlineAudioLimit = 4 << 20

// NatsWorker subscribes to a subject and answers operation envelopes.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	dispatcher     *dispatcher.Dispatcher
	store          core.ObjectStore
	inlineLimit    int
	log            *logger.Logger
}

// New creates a worker. The store is optional; without it every reply
// carries audio inline regardless of size.
func New(
	natsConnection *nats.Conn,
	subject string,
	disp *dispatcher.Dispatcher,
	store core.ObjectStore,
	inlineLimit int,
	log *logger.Logger,
) *NatsWorker {
	if inlineLimit <= 0 {
		inlineLimit = DefaultInlineAudioLimit
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		dispatcher:     disp,
		store:          store,
		inlineLimit:    inlineLimit,
		log:            log,
	}
}

// Run subscribes and blocks until the context is cancelled, then drains the
// subscription so in-flight jobs finish.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Worker listening on subject %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(ctx context.Context, msg *nats.Msg) {
	var envelope dispatcher.Envelope

	err := json.Unmarshal(msg.Data, &envelope)
	if err != nil {
		w.respond(msg, dispatcher.ErrorResponse{Error: dispatcher.ErrorBody{
			Code:    dispatcher.CodeValidation,
			Message: "envelope is not valid JSON",
		}})

		return
	}

	payload, jobErr := w.dispatcher.Dispatch(ctx, envelope.Input)
	if jobErr != nil {
		w.respond(msg, dispatcher.ErrorResponse{Error: *jobErr})

		return
	}

	w.respond(msg, w.offloadLargeAudio(ctx, payload))
}

// offloadLargeAudio swaps an oversized inline render for an object store
// key. The payload passes through unchanged when the store is absent, the
// payload is not a synthesis result, or the upload fails.
func (w *NatsWorker) offloadLargeAudio(ctx context.Context, payload any) any {
	response, ok := payload.(dispatcher.SynthesisResponse)
	if !ok || w.store == nil || len(response.AudioBase64) <= w.inlineLimit {
		return payload
	}

	wavData, err := base64.StdEncoding.DecodeString(response.AudioBase64)
	if err != nil {
		w.log.Error("Failed to decode rendered audio for offload: %v", err)

		return payload
	}

	audioKey := uuid.NewString() + ".wav"

	err = w.store.Upload(ctx, audioKey, wavData)
	if err != nil {
		w.log.Error("Failed to upload audio for key '%s', replying inline: %v", audioKey, err)

		return payload
	}

	response.AudioBase64 = ""
	response.AudioKey = audioKey

	return response
}

func (w *NatsWorker) respond(msg *nats.Msg, payload any) {
	if msg.Reply == "" {
		w.log.Warn("Dropping reply for message without reply subject on %s", w.subject)

		return
	}

	replyData, err := json.Marshal(payload)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(replyData)
	if err != nil {
		w.log.Error("Failed to publish reply: %v", err)
	}
}
