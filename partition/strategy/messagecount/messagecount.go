// Package messagecount bounds the number of records in a partition.
package messagecount

import (
	"github.com/davidvella/logclean/partition/strategy"
	"github.com/davidvella/logclean/record"
)

var _ strategy.Strategy = Strategy{}

type Strategy struct {
	MaxMessages int
}

func NewStrategy(maxMessages int) Strategy {
	return Strategy{MaxMessages: maxMessages}
}

func (s Strategy) ShouldRotate(information strategy.Information, _ record.IndexEntry) bool {
	return information.RecordCount >= s.MaxMessages
}
