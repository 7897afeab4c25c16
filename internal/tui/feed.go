package tui

import "github.com/suPer8Hu/finchat/internal/chatclient"

// Feed carries client change notifications into the bubbletea loop. Observe
// never blocks; when the buffer is full the change is dropped, which only
// delays a redraw until the next one.
type Feed chan chatclient.ChangeKind

func NewFeed() Feed {
	return make(Feed, 64)
}

// Observe is a chatclient.Observer.
func (f Feed) Observe(k chatclient.ChangeKind) {
	select {
	case f <- k:
	default:
	}
}
