// ABOUTME: Package doc for the streaming execution protocol
// ABOUTME: Pumps chunk streams to the event bus with durable final results

// Package stream executes streaming tools against the event bus.
//
// Every execution publishes started, forwards progress and partial chunks,
// and ends with exactly one terminal event. A final chunk is persisted
// before the complete event goes out, keyed by execution id so retries and
// races converge on a single durable result. A replay guard drops repeated
// execution ids silently on the bus side.
package stream
