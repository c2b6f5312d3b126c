package flush

import "testing"

func TestDecideClear(t *testing.T) {
	tests := []struct {
		name                                       string
		anySuccess, anyFailure, allRetry, allIgnore bool
		forceDelivery, want                         bool
	}{
		{"any success clears", true, true, false, false, false, true},
		{"all retry does not clear", false, true, true, false, false, false},
		{"all ignore clears", false, true, false, true, false, true},
		{"mixed strategies no success does not clear", false, true, false, false, false, false},
		{"force delivery always clears", false, true, true, false, true, true},
		{"no failures no successes does not clear", false, false, false, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decideClear(tt.anySuccess, tt.anyFailure, tt.allRetry, tt.allIgnore, tt.forceDelivery)
			if got != tt.want {
				t.Errorf("decideClear(%v,%v,%v,%v,%v) = %v, want %v",
					tt.anySuccess, tt.anyFailure, tt.allRetry, tt.allIgnore, tt.forceDelivery, got, tt.want)
			}
		})
	}
}
