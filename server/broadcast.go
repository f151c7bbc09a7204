package server

import (
	"github.com/sdzerobot/sdzerobot/tabulator"
)

// Publish queues a run event for all websocket clients. It never blocks:
// when the queue is full the event is dropped.
func (s *Server) Publish(e tabulator.Event) {
	select {
	case s.broadcast <- e:
	case <-s.ctx.Done():
	default:
		s.broadcastDrops.Add(1)
		s.logger.Debugw("Broadcast queue full, dropping event", "type", e.Type)
	}
}

// run owns the client set. All channel closes happen here, so a client's
// send channel is never written after it is closed.
func (s *Server) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			for c := range s.clients {
				delete(s.clients, c)
				c.close()
			}
			s.mu.Unlock()
			return

		case c := <-s.register:
			s.handleClientRegister(c)

		case c := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				c.close()
				s.logger.Infow("Client disconnected", "client_id", c.id, "total_clients", len(s.clients))
			}
			s.mu.Unlock()

		case e := <-s.broadcast:
			s.broadcastEvent(e)
		}
	}
}

func (s *Server) handleClientRegister(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) >= MaxClients {
		s.logger.Warnw("Max clients reached, rejecting connection",
			"client_id", c.id,
			"max_clients", MaxClients)
		c.close()
		return
	}
	s.clients[c] = true
	s.logger.Infow("Client connected", "client_id", c.id, "total_clients", len(s.clients))
}

// broadcastEvent sends to every client; clients that cannot keep up are removed
func (s *Server) broadcastEvent(e tabulator.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- e:
		default:
			s.broadcastDrops.Add(1)
			delete(s.clients, c)
			c.close()
			s.logger.Warnw("Client send channel full, removing client",
				"client_id", c.id,
				"total_drops", s.broadcastDrops.Load())
		}
	}
}

// clientCount returns the number of connected websocket clients
func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
