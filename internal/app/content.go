package app

import (
	"fmt"

	"broadcast-quiz-service/internal/domain"
)

// contentMessage renders the item body as media with caption or plain text.
func contentMessage(c domain.Content) domain.Outbound {
	if c.Media != nil {
		media := *c.Media
		return domain.Outbound{Media: &media, Text: c.Text}
	}
	return domain.Outbound{Text: c.Text}
}

// stageMessages renders a stage for delivery. withPrompt adds the free-text
// prompt used when a stage is handed to a participant on registration.
func stageMessages(item domain.ScheduleItem, withPrompt bool) []domain.Outbound {
	msgs := []domain.Outbound{contentMessage(item.Content)}
	switch {
	case len(item.Content.Options) > 0:
		opts := make([]string, len(item.Content.Options))
		copy(opts, item.Content.Options)
		msgs = append(msgs, domain.Outbound{Text: msgChooseOption, Options: opts})
	case withPrompt:
		msgs = append(msgs, domain.Outbound{Text: msgEnterAnswer})
	}
	if item.Hint != nil && item.Hint.Delay > 0 {
		msgs = append(msgs, domain.Outbound{Text: hintNotice(*item.Hint)})
	}
	return msgs
}

func postMessages(item domain.ScheduleItem) []domain.Outbound {
	return []domain.Outbound{contentMessage(item.Content)}
}

func hintNotice(h domain.Hint) string {
	return fmt.Sprintf(msgHintNotice, int(h.Delay.Minutes()))
}
