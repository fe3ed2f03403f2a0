package storage

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"safe-command-gateway/internal/safety"
)

// JournalWriter buffers threat events and invocation records and writes them
// to the database asynchronously, so journaling never blocks the execution
// path. It implements safety.JournalSink.
type JournalWriter struct {
	db       *DB
	threatCh chan *ThreatRecord
	invCh    chan *Invocation
	wg       sync.WaitGroup
	done     chan struct{}
	once     sync.Once
}

const (
	writerBufferSize = 256
	writeTimeout     = 5 * time.Second
	writeRetries     = 3
)

// NewJournalWriter creates and starts a buffered async writer.
func NewJournalWriter(db *DB) *JournalWriter {
	w := &JournalWriter{
		db:       db,
		threatCh: make(chan *ThreatRecord, writerBufferSize),
		invCh:    make(chan *Invocation, writerBufferSize),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// RecordThreat implements safety.JournalSink. Drops the event with a warning
// if the buffer is full rather than blocking a classification.
func (w *JournalWriter) RecordThreat(ev safety.ThreatEvent) {
	rec := &ThreatRecord{
		CommandHash: ev.CommandHash,
		Redacted:    ev.Redacted,
		SessionID:   ev.SessionID,
		Risk:        ev.Risk.String(),
		Count:       ev.Count,
		SeenAt:      ev.SeenAt,
	}
	select {
	case w.threatCh <- rec:
	default:
		log.Warn().Str("command_hash", ev.CommandHash).Msg("threat journal buffer full, dropping event")
	}
}

// RecordInvocation queues an invocation audit record.
func (w *JournalWriter) RecordInvocation(inv *Invocation) {
	select {
	case w.invCh <- inv:
	default:
		log.Warn().Str("invocation_id", inv.ID).Msg("invocation audit buffer full, dropping record")
	}
}

func (w *JournalWriter) run() {
	defer w.wg.Done()
	for {
		select {
		case rec := <-w.threatCh:
			w.writeThreat(rec)
		case inv := <-w.invCh:
			w.writeInvocation(inv)
		case <-w.done:
			w.drain()
			return
		}
	}
}

// drain flushes everything still buffered before shutdown.
func (w *JournalWriter) drain() {
	for {
		select {
		case rec := <-w.threatCh:
			w.writeThreat(rec)
		case inv := <-w.invCh:
			w.writeInvocation(inv)
		default:
			return
		}
	}
}

func (w *JournalWriter) writeThreat(rec *ThreatRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if err = w.db.LogThreat(ctx, rec); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	log.Error().Err(err).Str("command_hash", rec.CommandHash).Msg("failed to journal threat event")
}

func (w *JournalWriter) writeInvocation(inv *Invocation) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < writeRetries; attempt++ {
		if err = w.db.LogInvocation(ctx, inv); err == nil {
			return
		}
		time.Sleep(time.Duration(attempt+1) * 100 * time.Millisecond)
	}
	log.Error().Err(err).Str("invocation_id", inv.ID).Msg("failed to write invocation audit record")
}

// Close stops the writer after draining buffered records.
func (w *JournalWriter) Close() {
	w.once.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}
