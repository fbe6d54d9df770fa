package chatui

import "strings"

// Data formats inline callback data as "namespace:action:payload".
// Payload is kept as-is; an empty payload drops the trailing separator.
// Telegram caps callback_data at 64 bytes; every payload here is a decimal
// chat ID, well under the cap.
func Data(namespace, action, payload string) string {
	namespace = strings.TrimSpace(namespace)
	action = strings.TrimSpace(action)
	if payload == "" {
		return namespace + ":" + action
	}
	return namespace + ":" + action + ":" + payload
}

// Split parses callback data produced by Data. The payload may itself
// contain ':'; only the first two separators are significant.
func Split(data string) (namespace, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		payload = parts[2]
		fallthrough
	case 2:
		action = parts[1]
		fallthrough
	case 1:
		namespace = parts[0]
	}
	return namespace, action, payload
}
