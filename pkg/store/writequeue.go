package store

import (
	"context"
	"log"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
)

// writeOpType defines the type of write operation
type writeOpType int

const (
	opCreateSession writeOpType = iota
	opUpdateSelection
	opTouchSession
	opReplaceSource
	opDeleteSession
	opDeleteIdleSessions
	opCreateRun
	opUpdateRun
)

// writeOp represents a single write operation with its response channel
type writeOp struct {
	opType   writeOpType
	data     interface{}
	response chan writeResult
}

// writeResult contains the result of a write operation
type writeResult struct {
	err error
}

// writeQueue serializes database writes through a single goroutine
type writeQueue struct {
	queue  chan writeOp
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// newWriteQueue creates and starts a new write queue
func newWriteQueue(db *Store) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	wq := &writeQueue{
		queue:  make(chan writeOp, 100),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go wq.processQueue(db)

	return wq
}

// processQueue is the single writer goroutine that processes all write operations sequentially
func (wq *writeQueue) processQueue(db *Store) {
	defer close(wq.done)

	for {
		select {
		case <-wq.ctx.Done():
			// Drain remaining operations before shutting down
			for {
				select {
				case op := <-wq.queue:
					wq.executeOp(db, op)
				default:
					log.Println("[WRITE QUEUE] Shutdown complete")
					return
				}
			}

		case op := <-wq.queue:
			wq.executeOp(db, op)
		}
	}
}

// executeOp executes a single write operation
func (wq *writeQueue) executeOp(db *Store, op writeOp) {
	var result writeResult

	switch op.opType {
	case opCreateSession:
		result.err = db.createSessionDirect(op.data.(*model.Session))

	case opUpdateSelection:
		p := op.data.(updateSelectionParams)
		result.err = db.updateSelectionDirect(p.id, p.selection)

	case opTouchSession:
		p := op.data.(touchSessionParams)
		result.err = db.touchSessionDirect(p.id, p.at)

	case opReplaceSource:
		result.err = db.replaceSourceDirect(op.data.(replaceSourceParams))

	case opDeleteSession:
		result.err = db.deleteSessionDirect(op.data.(string))

	case opDeleteIdleSessions:
		result.err = db.deleteIdleSessionsDirect(op.data.(*deleteIdleParams))

	case opCreateRun:
		result.err = db.createRunDirect(op.data.(*model.ReportRun))

	case opUpdateRun:
		result.err = db.updateRunDirect(op.data.(*model.ReportRun))
	}

	op.response <- result
}

// enqueue adds a write operation to the queue and waits for the result
func (wq *writeQueue) enqueue(opType writeOpType, data interface{}) error {
	response := make(chan writeResult, 1)

	op := writeOp{
		opType:   opType,
		data:     data,
		response: response,
	}

	select {
	case wq.queue <- op:
	case <-wq.ctx.Done():
		return wq.ctx.Err()
	}

	select {
	case result := <-response:
		return result.err
	case <-wq.done:
		// The writer may have answered just before exiting
		select {
		case result := <-response:
			return result.err
		default:
			return wq.ctx.Err()
		}
	}
}

// shutdown gracefully shuts down the write queue
func (wq *writeQueue) shutdown() {
	log.Println("[WRITE QUEUE] Shutting down...")
	wq.cancel()
	<-wq.done
}

// Helper structs for passing parameters
type updateSelectionParams struct {
	id        string
	selection model.Selection
}

type touchSessionParams struct {
	id string
	at time.Time
}

type replaceSourceParams struct {
	id        string
	fileName  string
	source    []byte
	selection model.Selection
}

type deleteIdleParams struct {
	before  time.Time
	deleted []string
}
