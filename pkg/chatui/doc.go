// Package chatui provides small Telegram UI helpers used by the roster
// surfaces: inline keyboard builders, callback data packing in the
// "namespace:action:payload" form, and HTML-safe text helpers for
// ParseMode="HTML".
package chatui
