package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agent-racer/hookwatch/internal/push"
	"github.com/agent-racer/hookwatch/internal/pubsub"
	"github.com/agent-racer/hookwatch/internal/status"
	"github.com/agent-racer/hookwatch/internal/store"
)

// ConnEvents is the subscription side of *push.Conn.
type ConnEvents interface {
	OnStateChange(fn func(from, to push.State)) push.Unsubscribe
	OnReconnecting(fn func(push.ReconnectInfo)) push.Unsubscribe
	OnError(fn func(*push.Error)) push.Unsubscribe
}

// StatusEvents is the subscription side of *status.Aggregator.
type StatusEvents interface {
	OnUpdated(fn func(status.AggregateStatus)) pubsub.Unsubscribe
	OnError(fn func(error)) pubsub.Unsubscribe
}

// RecordEvents is the subscription side of *store.Store.
type RecordEvents interface {
	OnChange(fn func(store.Stream)) pubsub.Unsubscribe
}

// Subscribe forwards connection, status and record events to send, usually
// (*tea.Program).Send. The returned func removes every subscription.
func Subscribe(send func(tea.Msg), conn ConnEvents, agg StatusEvents, records RecordEvents) func() {
	unsubs := []pubsub.Unsubscribe{
		conn.OnStateChange(func(from, to push.State) { send(ConnStateMsg{From: from, To: to}) }),
		conn.OnReconnecting(func(info push.ReconnectInfo) { send(ReconnectMsg(info)) }),
		conn.OnError(func(err *push.Error) {
			if err.Type != push.ErrorParse {
				send(ConnErrorMsg{Err: err})
			}
		}),
		agg.OnUpdated(func(s status.AggregateStatus) { send(StatusMsg(s)) }),
		agg.OnError(func(err error) { send(StatusErrMsg{Err: err}) }),
		records.OnChange(func(s store.Stream) { send(RecordsMsg{Stream: s}) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
