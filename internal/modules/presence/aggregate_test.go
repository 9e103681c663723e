package presence

import "testing"

func TestAggregateSessions(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty set is offline", nil, StatusOffline},
		{"single online", []Status{StatusOnline}, StatusOnline},
		{"single away", []Status{StatusAway}, StatusAway},
		{"online wins over away", []Status{StatusAway, StatusOnline}, StatusOnline},
		{"online wins regardless of order", []Status{StatusOnline, StatusAway}, StatusOnline},
		{"all away", []Status{StatusAway, StatusAway, StatusAway}, StatusAway},
		{"many online", []Status{StatusOnline, StatusOnline}, StatusOnline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := make([]Session, len(tt.statuses))
			for i, st := range tt.statuses {
				sessions[i] = Session{ID: "s", UserID: "u", LocalStatus: st}
			}
			if got := AggregateSessions(sessions); got != tt.want {
				t.Errorf("AggregateSessions() = %v, want %v", got, tt.want)
			}
		})
	}
}
