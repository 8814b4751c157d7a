// Package resource provides optional global limits for training memory,
// background work, and snapshot IO bandwidth.
//
// A single Controller can be shared between a training run and the model
// stores: training reserves its arena memory up front, cache warming is
// bounded by the background-worker budget, and remote snapshot transfers
// flow through rate-limited readers and writers. All methods are safe on a
// nil *Controller, which enforces nothing.
package resource
