// Package keyboard builds Telegram reply markups.
package keyboard

import tele "gopkg.in/telebot.v4"

// maxPerRow keeps quick reply keyboards readable on phones.
const maxPerRow = 3

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}

// ReplyButtons builds a one-time reply keyboard, wrapping labels into rows
// of at most three buttons.
func ReplyButtons(labels []string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true, OneTimeKeyboard: true}
	var rows []tele.Row
	for _, chunk := range ChunkLabels(labels, maxPerRow) {
		buttons := make([]tele.Btn, 0, len(chunk))
		for _, label := range chunk {
			buttons = append(buttons, markup.Text(label))
		}
		rows = append(rows, markup.Row(buttons...))
	}
	markup.Reply(rows...)
	return markup
}

// ChunkLabels splits labels into rows with up to n entries per row.
func ChunkLabels(labels []string, n int) [][]string {
	if n <= 0 {
		n = 1
	}
	var rows [][]string
	for i := 0; i < len(labels); i += n {
		end := i + n
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, labels[i:end])
	}
	return rows
}
