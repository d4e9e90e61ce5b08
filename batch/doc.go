// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package batch provides the micro-batching dispatcher: it accumulates
independent inference requests into bounded batch windows, invokes the model
adapter once per window, and fans the ordered results back out to the
original callers.

# Window lifecycle

A window opens on the first arrival after idle and snapshots the active
config at that instant. It closes on whichever comes first: the pending
count reaching MaxBatchSize, or BatchWait elapsing since the window opened.
The frozen batch is then handed to the handler; requests arriving during the
invocation start the next window. A single collector goroutine owns all
window transitions, so no two windows ever close over overlapping request
sets and no request is assigned to two batches.

# Result delivery

Submit blocks the caller until its result is ready. Every admitted request
receives exactly one result: per-request failures come back as failure
results from the handler; a wholesale handler failure (panic, or a result
count that does not match the batch) marks every member of that batch failed
with a shared error. Fan-out is positional within the frozen batch, never
by request id.

# Reconfiguration

Reconfigure validates and atomically swaps the active config. A window
already open keeps the snapshot it was opened with; the next window sees the
new values. Nothing in flight is dropped or requeued.

# Usage

	d := batch.NewDispatcher(batch.DefaultConfig(), adapter.InferBatch, logger)
	defer d.Close()

	res, err := d.Submit(ctx, types.InferenceRequest{...})
*/
package batch
