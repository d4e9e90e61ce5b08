// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package model provides the model adapter: the component that owns a single
loaded model instance and turns an ordered batch of inference requests into
an ordered, positionally matched slice of results.

# Overview

The adapter wraps a Runtime, the boundary to the actual inference engine
(see the llamacpp subpackage for the llama.cpp-server implementation). It
guarantees three things the rest of the service relies on:

  - Single initialization: the model is loaded at most once per process,
    lazily on the first inference call. Concurrent first calls block on one
    loader; a failed load is retried on the next call, never cached.
  - Positional results: InferBatch always returns exactly one result per
    request, in submission order, for any batch size including zero.
  - Failure isolation: any fault while serving one request (empty input,
    prompt over budget, a runtime error) becomes that request's failure
    result and never aborts the remaining requests in the batch.

# Usage

	rt := llamacpp.New(llamacpp.Config{ModelPath: path, ContextSize: 8192}, logger)
	adapter := model.NewAdapter(rt, model.AdapterConfig{ContextSize: 8192}, logger)
	results := adapter.InferBatch(ctx, requests)
*/
package model
