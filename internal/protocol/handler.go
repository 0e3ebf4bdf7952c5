package protocol

// Handler receives the events of one channel.
type Handler interface {
	// HandleOpen is called once the channel is established.
	HandleOpen()
	// HandleFrame is called for each decoded inbound frame, in arrival order.
	HandleFrame(frame Frame)
	// HandleError is called for undecodable frames and for the terminal
	// channel failure.
	HandleError(err error)
}
