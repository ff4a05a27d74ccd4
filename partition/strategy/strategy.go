// Package strategy defines when the partitioner closes the partition being
// filled and starts a new one.
package strategy

import "github.com/davidvella/logclean/record"

// Information describes the partition being filled.
type Information struct {
	RecordCount int
	FirstKey    uint64
}

// Strategy decides whether next starts a new partition. It is only
// consulted for non-empty partitions, with entries in ascending key order.
type Strategy interface {
	ShouldRotate(information Information, next record.IndexEntry) bool
}
