// Package notify tells entity owners about votes. Every sink is best effort:
// a failed notification never affects the vote that caused it.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/bwise1/voteledger/internal/model"
)

// Emitter delivers a vote notice to one sink.
type Emitter interface {
	VoteOccurred(ctx context.Context, n model.VoteNotice) error
}

// Multi fans a notice out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) VoteOccurred(ctx context.Context, n model.VoteNotice) error {
	var errs []error
	for _, e := range m {
		if err := e.VoteOccurred(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Recorder interface {
	RecordNotification(result string)
}

// Async runs the wrapped emitter on its own goroutine with a detached,
// time-limited context and only logs failures.
type Async struct {
	next     Emitter
	timeout  time.Duration
	recorder Recorder
	wg       sync.WaitGroup
}

func NewAsync(next Emitter, timeout time.Duration, recorder Recorder) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{next: next, timeout: timeout, recorder: recorder}
}

func (a *Async) VoteOccurred(ctx context.Context, n model.VoteNotice) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		err := a.next.VoteOccurred(ctx, n)
		if err != nil {
			log.Warn().Err(err).
				Str("entity_id", n.EntityID.String()).
				Str("event_id", n.EventID.String()).
				Msg("vote notification not delivered")
		}
		if a.recorder != nil {
			if err != nil {
				a.recorder.RecordNotification("failed")
			} else {
				a.recorder.RecordNotification("sent")
			}
		}
	}()
	return nil
}

// Wait blocks until every notification in flight has finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
