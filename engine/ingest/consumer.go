package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const (
	// Subject is the NATS subject for incoming documents.
	Subject = "loreweave.ingest"
	// DLQSubject receives documents that exhausted their retries.
	DLQSubject = "loreweave.ingest.dlq"
	// MaxDeliveries before a document moves to the DLQ.
	MaxDeliveries = 3
	// retryHeader tracks delivery attempts across republishes.
	retryHeader = "X-Retry-Count"
)

// dlqMessage is published to the DLQ on repeated failure.
type dlqMessage struct {
	Document RawDocument `json:"document"`
	Error    string      `json:"error"`
	Retries  int         `json:"retries"`
}

// StartConsumer subscribes the pipeline to the ingest subject. Failed
// documents are republished with an incremented retry count until
// MaxDeliveries, then parked on the DLQ.
func StartConsumer(nc *nats.Conn, p *Pipeline, logger *slog.Logger) (*nats.Subscription, error) {
	if logger == nil {
		logger = slog.Default()
	}

	return nc.Subscribe(Subject, func(msg *nats.Msg) {
		var raw RawDocument
		if err := json.Unmarshal(msg.Data, &raw); err != nil {
			logger.Error("ingest: unmarshal failed", "error", err)
			return
		}

		retries := 0
		if msg.Header != nil {
			if v := msg.Header.Get(retryHeader); v != "" {
				fmt.Sscanf(v, "%d", &retries)
			}
		}

		receipt, err := p.Ingest(context.Background(), raw)
		if err == nil {
			logger.Info("ingest: success",
				"document_id", receipt.DocumentID,
				"segments", receipt.Segments,
				"entities", receipt.Entities)
			if msg.Reply != "" {
				_ = msg.Ack()
			}
			return
		}

		retries++
		logger.Error("ingest: pipeline failed",
			"document_id", raw.ID, "error", err, "retry", retries)

		if retries >= MaxDeliveries {
			data, _ := json.Marshal(dlqMessage{Document: raw, Error: err.Error(), Retries: retries})
			if pubErr := nc.Publish(DLQSubject, data); pubErr != nil {
				logger.Error("ingest: DLQ publish failed", "error", pubErr)
			}
		} else {
			retry := nats.NewMsg(Subject)
			retry.Data = msg.Data
			retry.Header = nats.Header{}
			retry.Header.Set(retryHeader, fmt.Sprintf("%d", retries))
			if pubErr := nc.PublishMsg(retry); pubErr != nil {
				logger.Error("ingest: retry publish failed", "error", pubErr)
			}
		}
		if msg.Reply != "" {
			_ = msg.Ack()
		}
	})
}
