package bus

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"

	"ticketchain/entity"
)

const internalTopicPrefix = "internal-events.svc-ticketchain."

func NewEventBus(pub message.Publisher) (*cqrs.EventBus, error) {
	return cqrs.NewEventBusWithConfig(pub, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			event, ok := params.Event.(entity.Event)
			if !ok {
				return "", fmt.Errorf("invalid event type: %T doesn't implement entity.Event", params.Event)
			}

			return PublishTopic(event, params.EventName), nil
		},
		Marshaler: Marshaler,
	})
}

var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

// PublishTopic is the topic an event is published to.
// Public events go through "events" so they reach the data lake before being split per event name.
func PublishTopic(event entity.Event, eventName string) string {
	if event.IsInternal() {
		return internalTopicPrefix + eventName
	}

	return "events"
}

// SubscribeTopic is the topic handlers of the event consume from.
func SubscribeTopic(event entity.Event, eventName string) string {
	if event.IsInternal() {
		return internalTopicPrefix + eventName
	}

	return "events." + eventName
}
