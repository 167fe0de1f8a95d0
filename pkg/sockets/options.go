package sockets

import "time"

func WithPingInterval(d time.Duration) func(*Hub) {
	return func(h *Hub) {
		h.pingInterval = d
	}
}

// WithSendBuffer sets how many messages may queue per client before the
// client is dropped as too slow.
func WithSendBuffer(n int) func(*Hub) {
	return func(h *Hub) {
		h.sendBuffer = n
	}
}

func WithCheckOrigin(f func(origin string) bool) func(*Hub) {
	return func(h *Hub) {
		h.checkOrigin = f
	}
}

func OnError(f func(error)) func(*Hub) {
	return func(h *Hub) {
		h.onError = f
	}
}

// OnConnected runs for every new client before it receives broadcasts.
func OnConnected(f func(*Client)) func(*Hub) {
	return func(h *Hub) {
		h.onConnected = f
	}
}
