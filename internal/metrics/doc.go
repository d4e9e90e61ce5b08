// Copyright (c) llmserve Authors.
// Licensed under the MIT License.

/*
Package metrics provides Prometheus instrumentation for the serving
pipeline: HTTP traffic, inference outcomes, batch formation, cache
effectiveness and the autoscale target.

# Overview

Collector registers all metrics against a single Registerer under one
namespace. Handlers and the dispatcher loop record through Collector
methods; queue depth and in-flight counts are exported as gauges read
live from the dispatcher, so they never go stale between scrapes.
*/
package metrics
