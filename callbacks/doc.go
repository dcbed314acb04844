// Package callbacks provides the handlers of the assistant events:
// printing, logging, fan-out and the per-chat scratchpad with run stats.
package callbacks
