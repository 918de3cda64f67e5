package models

import "time"

// Delivery is one message handed to the worker by the queue transport.
type Delivery struct {
	Tag         uint64
	MessageID   string
	RoutingKey  string
	Body        []byte
	Redelivered bool
	ReceivedAt  time.Time
}

// QueueStatus is a point-in-time view of the consumed queue.
type QueueStatus struct {
	Ready   int
	Unacked int
}
