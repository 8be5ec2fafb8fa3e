package model

import (
	"context"
	"errors"
	"image"
	"sync"
)

// ErrPoolClosed is returned when the analyser has been shut down.
var ErrPoolClosed = errors.New("model pool closed")

// engine runs detection and recognition on one image at a time.
type engine interface {
	analyze(img *image.RGBA, maxFaces int) ([]Face, error)
	destroy()
}

// pool hands out engines to one caller at a time. With a single engine every
// inference is serialized.
type pool struct {
	engines chan engine
	size    int

	closeOnce sync.Once
	closed    chan struct{}
}

func newPool(engines []engine) *pool {
	p := &pool{
		engines: make(chan engine, len(engines)),
		size:    len(engines),
		closed:  make(chan struct{}),
	}
	for _, e := range engines {
		p.engines <- e
	}
	return p
}

// acquire blocks until an engine is free, ctx is done, or the pool is closed.
func (p *pool) acquire(ctx context.Context) (engine, error) {
	select {
	case <-p.closed:
		return nil, ErrPoolClosed
	default:
	}

	select {
	case e := <-p.engines:
		select {
		case <-p.closed:
			p.engines <- e
			return nil, ErrPoolClosed
		default:
			return e, nil
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrPoolClosed
	}
}

func (p *pool) release(e engine) {
	p.engines <- e
}

// close stops handing out engines, waits for borrowed ones to come back and
// destroys all of them.
func (p *pool) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		for range p.size {
			e := <-p.engines
			e.destroy()
		}
	})
}
