package pipeline

import (
	"context"
	"sync"
)

// deliveries tracks in flight deliveries by blob name
type deliveries struct {
	mutex sync.Mutex
	names map[string]*blob
}

// blob is the state shared by the in flight deliveries of one name
type blob struct {
	lock       chan struct{}
	generation uint64
	refs       int

	// Content hash of the last delivery published while this entry was alive, guarded by lock
	hash    uint64
	hasHash bool
}

type delivery struct {
	name       string
	blob       *blob
	generation uint64
}

// acquire registers a delivery and waits until no other delivery of the same name is being processed
func (d *deliveries) acquire(ctx context.Context, name string) (*delivery, error) {
	d.mutex.Lock()
	if d.names == nil {
		d.names = make(map[string]*blob)
	}

	b, ok := d.names[name]
	if !ok {
		b = &blob{lock: make(chan struct{}, 1)}
		d.names[name] = b
	}
	b.generation++
	b.refs++
	current := &delivery{name: name, blob: b, generation: b.generation}
	d.mutex.Unlock()

	select {
	case b.lock <- struct{}{}:
		return current, nil
	case <-ctx.Done():
		d.unref(current)
		return nil, ctx.Err()
	}
}

// release lets the next delivery of the same name proceed
func (d *deliveries) release(current *delivery) {
	<-current.blob.lock
	d.unref(current)
}

func (d *deliveries) unref(current *delivery) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	current.blob.refs--
	if current.blob.refs == 0 {
		delete(d.names, current.name)
	}
}

// superseded reports whether a newer delivery of the same name arrived while this one was waiting
func (d *deliveries) superseded(current *delivery) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	return current.blob.generation != current.generation
}

// duplicate reports whether the previous delivery of the same name published identical content
func (current *delivery) duplicate(hash uint64) bool {
	return current.blob.hasHash && current.blob.hash == hash
}

func (current *delivery) published(hash uint64) {
	current.blob.hash = hash
	current.blob.hasHash = true
}
