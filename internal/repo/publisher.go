package repo

import "context"

// EventPublisher receives catalog change notifications after a mutation commits
type EventPublisher interface {
	PublishCreated(ctx context.Context, entity, id string, payload map[string]interface{}) error
	PublishUpdated(ctx context.Context, entity, id string, payload map[string]interface{}) error
	PublishDeleted(ctx context.Context, entity, id string, payload map[string]interface{}) error
}

type nopPublisher struct{}

func (nopPublisher) PublishCreated(context.Context, string, string, map[string]interface{}) error {
	return nil
}

func (nopPublisher) PublishUpdated(context.Context, string, string, map[string]interface{}) error {
	return nil
}

func (nopPublisher) PublishDeleted(context.Context, string, string, map[string]interface{}) error {
	return nil
}
