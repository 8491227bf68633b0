// Package notifier collects short status notifications and shows them per
// channel.
//
// Items are created with CreateNotification and queued with
// AddNotifications. Nothing is displayed until ShowNotification drains a
// channel; each pending item is then delivered to every configured sink
// (terminal, log, Telegram).
//
// # Delivery
//
// Delivery is throttled with a token bucket, retried with backoff, and
// identical items shown again within the dedup window are suppressed.
//
// # Hyperlinks
//
// URLs found in a body are extracted into Item.Links. Activate dispatches an
// Activated event to the item's handler; DefaultHyperlinkHandler opens the
// link in the system browser.
package notifier
