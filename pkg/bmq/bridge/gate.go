package bridge

import "sync"

// callbackGate admits native callbacks until it is closed. close blocks until
// every admitted callback has left.
type callbackGate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	closed   bool
	inFlight int
}

func newCallbackGate() *callbackGate {
	g := &callbackGate{}
	g.cond = sync.NewCond(&g.mu)

	return g
}

func (g *callbackGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}

	g.inFlight++

	return true
}

func (g *callbackGate) leave() {
	g.mu.Lock()
	g.inFlight--
	if g.inFlight == 0 {
		g.cond.Broadcast()
	}
	g.mu.Unlock()
}

func (g *callbackGate) close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closed = true
	for g.inFlight > 0 {
		g.cond.Wait()
	}
}

func (g *callbackGate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.closed
}
