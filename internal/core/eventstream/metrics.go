package eventstream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arlo_events_received_total",
		Help: "Events received on the cloud event feed.",
	})
	commandsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arlo_commands_sent_total",
		Help: "Commands published to the notify endpoint, by action.",
	}, []string{"action"})
	commandFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arlo_command_failures_total",
		Help: "Commands the cloud rejected or that failed to send.",
	})
)
