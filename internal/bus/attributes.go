package bus

import (
	"go.opentelemetry.io/otel/attribute"
)

const messagingSystem = "nats"

const (
	attrMessagingSystem          = "messaging.system"
	attrMessagingOperationName   = "messaging.operation.name"
	attrMessagingOperationType   = "messaging.operation.type"
	attrMessagingDestinationName = "messaging.destination.name"
	attrMessagingMessageID       = "messaging.message.id"
	attrMessagingMessageBodySize = "messaging.message.body.size"
)

const opTypePublish = "publish"
const opTypeSend = "send"

func publishAttributes(subject, msgID string, bodySize int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 6)

	attrs = append(attrs,
		attribute.String(attrMessagingSystem, messagingSystem),
		attribute.String(attrMessagingOperationName, opTypePublish),
		attribute.String(attrMessagingOperationType, opTypeSend),
		attribute.String(attrMessagingDestinationName, subject),
	)

	if msgID != "" {
		attrs = append(attrs, attribute.String(attrMessagingMessageID, msgID))
	}

	if bodySize > 0 {
		attrs = append(attrs, attribute.Int(attrMessagingMessageBodySize, bodySize))
	}

	return attrs
}
