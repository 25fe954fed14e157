// Sonograph - Audio Recording Analysis Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sonograph

package analysis

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/sonograph/internal/eventprocessor"
)

// HandlerName identifies the bridge handler in router logs.
const HandlerName = "analysis-bridge"

// NewRouter builds a router that feeds requests on topic to the bridge.
// Requests that keep failing are published to the poison topic of cfg;
// interrupted ones are nacked for redelivery.
func NewRouter(
	b *Bridge,
	topic string,
	sub message.Subscriber,
	poison message.Publisher,
	cfg *eventprocessor.RouterConfig,
	logger watermill.LoggerAdapter,
) (*eventprocessor.Router, error) {
	if b == nil || sub == nil {
		return nil, fmt.Errorf("bridge router needs a bridge and a subscriber")
	}

	routerCfg := eventprocessor.DefaultRouterConfig()
	if cfg != nil {
		routerCfg = *cfg
	}
	routerCfg.PoisonFilter = func(err error) bool {
		return !errors.Is(err, ErrInterrupted)
	}

	r, err := eventprocessor.NewRouter(&routerCfg, poison, logger)
	if err != nil {
		return nil, err
	}
	r.AddConsumerHandler(HandlerName, topic, sub, b.Handle)
	return r, nil
}
