package tgui

// MaxMessageRunes is Telegram's text limit for one message after entity
// parsing.
const MaxMessageRunes = 4096
