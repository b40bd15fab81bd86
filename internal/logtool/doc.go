// Package logtool reads protocol trace files written by log.FileLogger and
// renders them for people and other tools: a human-readable view, JSONL and
// CSV export, filtering into a new trace file and summary statistics.
package logtool
