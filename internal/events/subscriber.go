package events

// Subscriber feeds discovery events to consumers such as the search log.
// Topics are subjects under TopicPrefix and may end in the "*" or ">"
// wildcards understood by MatchTopic.
type Subscriber interface {
	// Subscribe streams the JSON payload of every event on a matching
	// topic. The cancel func stops delivery and closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

var (
	_ Subscriber = (*LocalBus)(nil)
	_ Subscriber = (*NATSSubscriber)(nil)
)
