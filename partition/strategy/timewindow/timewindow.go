// Package timewindow bounds the span of keys in a partition. Keys are read
// as Unix timestamps in seconds.
package timewindow

import (
	"time"

	"github.com/davidvella/logclean/partition/strategy"
	"github.com/davidvella/logclean/record"
)

var _ strategy.Strategy = &Strategy{}

type Strategy struct {
	windowSize time.Duration
}

func NewStrategy(windowSize time.Duration) *Strategy {
	return &Strategy{
		windowSize: windowSize,
	}
}

func (s *Strategy) ShouldRotate(information strategy.Information, next record.IndexEntry) bool {
	window := uint64(s.windowSize / time.Second)
	return next.Key-information.FirstKey > window
}
