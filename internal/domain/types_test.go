package domain

import "testing"

func TestPriorityOrdinalOrder(t *testing.T) {
	// 우선순위 값의 대소 비교가 서열 비교와 일치해야 합니다
	if !(PriorityLow < PriorityNormal &&
		PriorityNormal < PriorityHigh &&
		PriorityHigh < PriorityCritical) {
		t.Errorf("우선순위 서열 위반: LOW=%d NORMAL=%d HIGH=%d CRITICAL=%d",
			PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical)
	}
}

func TestPriorityString(t *testing.T) {
	tests := []struct {
		priority Priority
		want     string
	}{
		{PriorityLow, "LOW"},
		{PriorityNormal, "NORMAL"},
		{PriorityHigh, "HIGH"},
		{PriorityCritical, "CRITICAL"},
		{Priority(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.priority.String(); got != tt.want {
			t.Errorf("String(%d) = %s, want %s", tt.priority, got, tt.want)
		}
	}
}
