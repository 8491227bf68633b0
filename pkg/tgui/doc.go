// Package tgui builds Telegram message text for ParseMode HTML. Values of
// type H are already escaped; everything else goes through Esc.
package tgui
