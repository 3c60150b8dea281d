package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// topicPublishers hands out one publisher per topic for the life of the process.
type topicPublishers struct {
	mu     sync.Mutex
	open   func(topic string) *gcppubsub.Publisher
	byName map[string]publisher
}

func newTopicPublishers(open func(topic string) *gcppubsub.Publisher) *topicPublishers {
	return &topicPublishers{open: open, byName: map[string]publisher{}}
}

func (t *topicPublishers) get(topic string) publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.byName[topic]; ok {
		return pub
	}
	raw := t.open(topic)
	if raw == nil {
		return nil
	}
	pub := &gcpPublisher{Publisher: raw}
	t.byName[topic] = pub
	return pub
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
