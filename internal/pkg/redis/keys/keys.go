package keys

import "fmt"

// Namespaces/prefixes
const (
	DefaultPrefix = "taskhost"
	PrefixQueue   = "queue"
	PrefixMetrics = "metrics"
)

func prefixOrDefault(prefix string) string {
	if prefix == "" {
		return DefaultPrefix
	}
	return prefix
}

// QueueVisibleKey returns the sorted set holding a queue's message ids scored
// by the unix-millisecond instant they become visible.
// Example: taskhost:queue:orders:visible
func QueueVisibleKey(prefix, queue string) string {
	return fmt.Sprintf("%s:%s:%s:visible", prefixOrDefault(prefix), PrefixQueue, queue)
}

// QueueMessagePrefix returns the prefix every message hash of a queue shares
// Example: taskhost:queue:orders:msg:
func QueueMessagePrefix(prefix, queue string) string {
	return fmt.Sprintf("%s:%s:%s:msg:", prefixOrDefault(prefix), PrefixQueue, queue)
}

// QueueMessageKey returns the hash holding one message
// Example: taskhost:queue:orders:msg:<id>
func QueueMessageKey(prefix, queue, id string) string {
	return QueueMessagePrefix(prefix, queue) + id
}

// MetricsKey returns the counter key of one processor instance
// Example: taskhost:metrics:<instance>:processed
func MetricsKey(prefix, instance, counter string) string {
	return fmt.Sprintf("%s:%s:%s:%s", prefixOrDefault(prefix), PrefixMetrics, instance, counter)
}
