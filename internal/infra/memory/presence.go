package memory

import (
	"sync"

	"challenge-service/internal/app"
)

// Presence keeps one current connection per user, last identify wins.
// Replaced connections are not closed, they just stop receiving routed events.
type Presence struct {
	mu     sync.RWMutex
	byUser map[string]app.Conn
	byConn map[string]string
}

func NewPresence() *Presence {
	return &Presence{
		byUser: make(map[string]app.Conn),
		byConn: make(map[string]string),
	}
}

func (p *Presence) Identify(userID string, conn app.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.byUser[userID]; ok && prev.ID() != conn.ID() {
		delete(p.byConn, prev.ID())
	}
	if prevUser, ok := p.byConn[conn.ID()]; ok && prevUser != userID {
		delete(p.byUser, prevUser)
	}
	p.byUser[userID] = conn
	p.byConn[conn.ID()] = userID
}

func (p *Presence) Resolve(userID string) (app.Conn, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	conn, ok := p.byUser[userID]
	return conn, ok
}

func (p *Presence) Forget(conn app.Conn) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.byConn[conn.ID()]
	if !ok {
		return "", false
	}
	delete(p.byConn, conn.ID())
	if current, ok := p.byUser[userID]; ok && current.ID() == conn.ID() {
		delete(p.byUser, userID)
	}
	return userID, true
}
