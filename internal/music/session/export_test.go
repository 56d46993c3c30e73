package session

// HandlePlayerEvent applies ev synchronously, bypassing the event goroutine.
func (s *Session) HandlePlayerEvent(ev PlayerEvent) { s.handlePlayerEvent(ev) }
