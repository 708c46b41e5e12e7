package engine

import (
	"fmt"
	"log"
	"time"

	"github.com/tinytelemetry/spool/internal/model"
)

// dispatch is the single drain-and-deliver step. It only ever runs on the
// strategy's flushing goroutine (or the Manual owner, serialised).
func (e *Engine) dispatch() error {
	started := time.Now()

	batch := &model.Batch{
		Counts:    e.buffers.DrainCounts(),
		Amounts:   e.buffers.DrainAmounts(),
		Statuses:  e.buffers.DrainStatuses(),
		Intervals: e.buffers.DrainIntervals(),
	}

	results, err := e.matcher.Match(batch.Intervals)
	if err != nil {
		err = fmt.Errorf("interval matching: %w", err)
		e.fail(err, batch)
		return err
	}
	batch.Results = results

	if rest, err := e.deliver(batch); err != nil {
		e.fail(err, rest)
		return err
	}

	if e.metrics != nil {
		e.metrics.observeFlush(batch, time.Since(started))
	}
	return nil
}

// deliver forwards b one kind at a time. On failure it returns the part of b
// the consumer has not accepted, so kinds already stored are not kept twice.
func (e *Engine) deliver(b *model.Batch) (*model.Batch, error) {
	rest := *b
	if err := e.consumer.ProcessCountEvents(b.Counts); err != nil {
		return &rest, fmt.Errorf("consumer: count events: %w", err)
	}
	rest.Counts = nil
	if err := e.consumer.ProcessAmountEvents(b.Amounts); err != nil {
		return &rest, fmt.Errorf("consumer: amount events: %w", err)
	}
	rest.Amounts = nil
	if err := e.consumer.ProcessStatusEvents(b.Statuses); err != nil {
		return &rest, fmt.Errorf("consumer: status events: %w", err)
	}
	rest.Statuses = nil
	if err := e.consumer.ProcessIntervalEvents(b.Results); err != nil {
		return &rest, fmt.Errorf("consumer: interval events: %w", err)
	}
	return nil, nil
}

func (e *Engine) fail(reason error, b *model.Batch) {
	if e.metrics != nil {
		e.metrics.observeFault()
	}
	if e.deadLetter == nil {
		return
	}
	if err := e.deadLetter.Append(reason, b); err != nil {
		log.Printf("engine: dead letter append failed, %d events lost: %v", b.Len(), err)
		return
	}
	log.Printf("engine: %d undeliverable events written to dead letter", b.Len())
}
