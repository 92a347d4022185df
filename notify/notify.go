// Package notify publishes group changes to a message queue so other
// services (overlays, loyalty bots) can follow staff and subscriber changes.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/onnwee/modkeeper/permissions"
	"github.com/onnwee/modkeeper/telemetry"
)

// DefaultQueue receives group change messages when none is configured.
const DefaultQueue = "modkeeper.group_changes"

// Publisher delivers one message to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte, attrs map[string]string) error
	Close() error
}

// Message is the JSON body of a group change notification.
type Message struct {
	Channel  string    `json:"channel"`
	Username string    `json:"username"`
	From     int       `json:"from"`
	FromName string    `json:"from_name"`
	To       int       `json:"to"`
	ToName   string    `json:"to_name"`
	At       time.Time `json:"at"`
}

// Notifier buffers changes and publishes them from its own goroutine, so the
// permission engine never waits on the broker.
type Notifier struct {
	pub     Publisher
	queue   string
	channel string
	changes chan Message
	now     func() time.Time
}

// New returns a Notifier. A nil pub disables publishing.
func New(pub Publisher, queue, channel string, buffer int) *Notifier {
	if queue == "" {
		queue = DefaultQueue
	}
	if buffer <= 0 {
		buffer = 1024
	}
	return &Notifier{pub: pub, queue: queue, channel: channel, changes: make(chan Message, buffer), now: time.Now}
}

// Notify queues c. It is a permissions.ChangeFunc and never blocks; when the
// buffer is full the change is dropped and counted.
func (n *Notifier) Notify(c permissions.GroupChange) {
	if n.pub == nil {
		return
	}
	msg := Message{
		Channel:  n.channel,
		Username: c.Username,
		From:     int(c.From),
		FromName: c.From.String(),
		To:       int(c.To),
		ToName:   c.To.String(),
		At:       n.now().UTC(),
	}
	select {
	case n.changes <- msg:
	default:
		telemetry.IncCounter(telemetry.NotifyFailed)
		slog.Warn("group change notification dropped, buffer full",
			slog.String("component", "notify"), slog.String("user", c.Username))
	}
}

// Run publishes queued changes until ctx is done, then closes the publisher.
func (n *Notifier) Run(ctx context.Context) error {
	if n.pub == nil {
		<-ctx.Done()
		return nil
	}
	defer func() {
		if err := n.pub.Close(); err != nil {
			slog.Warn("close publisher", slog.String("component", "notify"), slog.Any("err", err))
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-n.changes:
			n.publish(ctx, msg)
		}
	}
}

func (n *Notifier) publish(ctx context.Context, msg Message) {
	body, err := json.Marshal(msg)
	if err != nil {
		telemetry.IncCounter(telemetry.NotifyFailed)
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = n.pub.Publish(pctx, n.queue, body, map[string]string{"event": "group_change", "to": msg.ToName})
	if err != nil {
		telemetry.IncCounter(telemetry.NotifyFailed)
		slog.Warn("publish group change failed",
			slog.String("component", "notify"),
			slog.String("user", msg.Username),
			slog.Any("err", err))
	}
}
