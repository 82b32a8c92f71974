package telemetry

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event is one fire-and-forget telemetry record.
type Event struct {
	Name   string
	Fields logrus.Fields
}

// Reporter delivers events to the logger off the hot path. Report never
// blocks; events are dropped when the buffer is full. The event channel is
// never closed, so Report stays safe even from goroutines that outlive Close.
type Reporter struct {
	ch   chan Event
	done chan struct{}
	log  *logrus.Logger
	wg   sync.WaitGroup
	once sync.Once
}

func NewReporter(log *logrus.Logger) *Reporter {
	if log == nil {
		log = logrus.New()
	}
	r := &Reporter{
		ch:   make(chan Event, 64),
		done: make(chan struct{}),
		log:  log,
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

func (r *Reporter) drain() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.ch:
			r.log.WithFields(ev.Fields).Debug(ev.Name)
		case <-r.done:
			for {
				select {
				case ev := <-r.ch:
					r.log.WithFields(ev.Fields).Debug(ev.Name)
				default:
					return
				}
			}
		}
	}
}

// Report queues an event. Safe on a nil reporter.
func (r *Reporter) Report(name string, fields logrus.Fields) {
	if r == nil {
		return
	}
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.ch <- Event{Name: name, Fields: fields}:
	default:
	}
}

// Close flushes queued events and stops the drain goroutine.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}
