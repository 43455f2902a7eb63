package gateway

import "time"

// Metrics observes the command queue. Implementations must be safe for
// concurrent use and must not block.
type Metrics interface {
	// QueueDepth reports the number of queued commands.
	QueueDepth(n int)
	// CommandStarted reports how long a command waited in the queue.
	CommandStarted(name string, wait time.Duration)
	// CommandFinished reports how long a command ran and how it ended.
	CommandFinished(name string, run time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) QueueDepth(int)                               {}
func (noopMetrics) CommandStarted(string, time.Duration)         {}
func (noopMetrics) CommandFinished(string, time.Duration, error) {}
