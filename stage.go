package logclean

import (
	"fmt"

	"github.com/davidvella/logclean/errdefs"
)

// Stage is a step of the pipeline. Stages run in declaration order.
type Stage int

const (
	StageExtract Stage = iota
	StagePartition
	StageSort
	StageMerge
	StageCleanup
)

var stageNames = map[Stage]string{
	StageExtract:   "extract",
	StagePartition: "partition",
	StageSort:      "sort",
	StageMerge:     "merge",
	StageCleanup:   "cleanup",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage returns the stage a run can be resumed from.
func ParseStage(name string) (Stage, error) {
	switch name {
	case StageSort.String():
		return StageSort, nil
	case StageMerge.String():
		return StageMerge, nil
	default:
		return 0, errdefs.NewConfigError("from", "cannot resume from %q, expected sort or merge", name)
	}
}
