// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

// Package eventprocessor carries analysis jobs over NATS JetStream using
// Watermill.
//
// One stream holds three subjects:
//
//	analysis.requests   RequestEnvelope  {id, data:{download_url, ...}}
//	analysis.results    ResponseEnvelope {id, data:{_kind, ...}}
//	analysis.poison     requests the analysis bridge gave up on
//
//	┌──────────┐  request   ┌───────────┐  request  ┌─────────────────┐
//	│ Submitter├──────────▶│ JetStream ├─────────▶│ analysis bridge │
//	└──────────┘            │  ANALYSIS │           └────────┬────────┘
//	                        │           │◀─────────────────────┘ responses
//	┌──────────┐  results   │           │
//	│ Ingestor │◀───────────┤           │
//	└────┬─────┘            └───────────┘
//	     │ one transaction per message
//	     ▼
//	  DuckDB
//
// # Components
//
//   - Broker: optional embedded server, stream setup and the shared Publisher
//   - Submitter: signs blob URLs and publishes one request per job, no retry
//   - Ingestor: the single consumer of results; applies, then acks
//   - Router: Watermill router with poison queue, retry and panic recovery,
//     used by the analysis bridge
//   - HealthChecker: concurrent component checks behind /api/v1/health
//
// # Delivery
//
// Publishes set Nats-Msg-Id to the message UUID and the stream drops
// duplicates inside its window. The ingestor consumer has MaxAckPending 1,
// so the broker holds back the next result until the current one is acked.
// A message that fails to decode is written to the dead-letter store and
// acked. A message that keeps failing to apply is redelivered until the
// attempt budget is spent, then dead-lettered and acked.
//
// # Usage
//
//	broker, err := eventprocessor.StartBroker(ctx, &cfg.NATS)
//	if err != nil {
//	    return err
//	}
//	defer broker.Close(context.Background())
//
//	sub, err := broker.NewIngestorSubscriber()
//	ingestor, err := eventprocessor.NewIngestor(sub, db, deadLetters,
//	    eventprocessor.IngestorConfigFrom(&cfg.NATS))
//	go ingestor.Run(ctx)
package eventprocessor
