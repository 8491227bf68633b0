package notifier

import (
	"strings"

	logx "planexport/pkg/logx"
)

var _ logx.Forwarder = (*Service)(nil)

// ForwardLog queues a log record as a notification on the error or warning
// channel. The first line becomes the title.
func (s *Service) ForwardLog(level logx.Level, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	title, body, _ := strings.Cut(text, "\n")
	ch := ChannelWarning
	if level >= logx.LevelError {
		ch = ChannelError
	}
	s.AddNotifications([]Item{s.CreateNotification(ch, title, body, DefaultHyperlinkHandler)})
}
