// Package composite rotates when any of its member strategies does.
package composite

import (
	"github.com/davidvella/logclean/partition/strategy"
	"github.com/davidvella/logclean/record"
)

var _ strategy.Strategy = &Strategy{}

type Strategy struct {
	strategies []strategy.Strategy
}

func NewStrategy(strategies ...strategy.Strategy) *Strategy {
	return &Strategy{strategies: strategies}
}

func (c *Strategy) ShouldRotate(information strategy.Information, next record.IndexEntry) bool {
	for _, s := range c.strategies {
		if s.ShouldRotate(information, next) {
			return true
		}
	}
	return false
}
