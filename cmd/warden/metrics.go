package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_messages_received",
	Help: "Number of gateway messages received",
})

var messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "warden_messages_dropped",
	Help: "Number of gateway messages dropped during shutdown",
})
