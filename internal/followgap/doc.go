// Package followgap implements the reactive follow-the-gap steering policy.
//
// Responsibilities: sweep sanitization, windowed-mean smoothing, bubble
// masking around close returns, gap detection, gap ranking and target
// selection, and command synthesis.
// Key types: ScanFrame, Params, Gap, Command, Decision.
//
// Every decision is a pure function of one ScanFrame and the immutable
// Params; nothing is carried between cycles. Transport, queueing, deadlines
// and persistence live in the controller package and its adapters.
// This package does no I/O and must not import them.
package followgap
