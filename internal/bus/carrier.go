package bus

import (
	"github.com/nats-io/nats.go"
)

// headerCarrier adapts nats.Header to propagation.TextMapCarrier so trace
// context can ride along in published message headers.
type headerCarrier nats.Header

func (c headerCarrier) Get(key string) string {
	vals := nats.Header(c).Values(key)
	if len(vals) > 0 {
		return vals[0]
	}

	return ""
}

func (c headerCarrier) Set(key, value string) {
	nats.Header(c).Set(key, value)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}

	return keys
}
