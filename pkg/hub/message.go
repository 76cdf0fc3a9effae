// Package hub fans messages out to websocket clients. One goroutine owns the
// client set; producers never block on slow clients.
package hub

// Message is one broadcast payload. Binary messages carry encoded frames and
// go out as binary websocket frames; everything else is sent as text.
type Message struct {
	Binary bool
	Data   []byte
}

// Text wraps pre-encoded JSON or other text.
func Text(data []byte) Message {
	return Message{Data: data}
}

// Frame wraps an encoded image.
func Frame(data []byte) Message {
	return Message{Binary: true, Data: data}
}
