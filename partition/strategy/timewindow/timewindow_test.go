package timewindow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/davidvella/logclean/partition/strategy"
	"github.com/davidvella/logclean/record"
)

func TestTimeWindowStrategy(t *testing.T) {
	tests := []struct {
		name         string
		windowSize   time.Duration
		current      strategy.Information
		incoming     uint64
		expectRotate bool
	}{
		{
			name:         "same window - no rotation",
			windowSize:   5 * time.Minute,
			current:      strategy.Information{FirstKey: 1000, RecordCount: 4},
			incoming:     1001,
			expectRotate: false,
		},
		{
			name:         "window edge - no rotation",
			windowSize:   5 * time.Minute,
			current:      strategy.Information{FirstKey: 1000, RecordCount: 4},
			incoming:     1300,
			expectRotate: false,
		},
		{
			name:         "different window - should rotate",
			windowSize:   5 * time.Minute,
			current:      strategy.Information{FirstKey: 1000, RecordCount: 4},
			incoming:     1301,
			expectRotate: true,
		},
		{
			name:         "equal keys never rotate",
			windowSize:   0,
			current:      strategy.Information{FirstKey: 1000, RecordCount: 4},
			incoming:     1000,
			expectRotate: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStrategy(tt.windowSize)

			rotate := s.ShouldRotate(tt.current, record.IndexEntry{Key: tt.incoming})
			assert.Equal(t, tt.expectRotate, rotate)
		})
	}
}
