package progression

import "testing"

func TestRequiredXP(t *testing.T) {
	tests := []struct {
		level int
		want  int64
	}{
		{0, 100},
		{1, 282},
		{2, 519},
		{3, 800},
		{4, 1118},
	}
	for _, tt := range tests {
		if got := RequiredXP(100, 1.5, tt.level); got != tt.want {
			t.Errorf("RequiredXP(100, 1.5, %d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestTotalXPForLevel(t *testing.T) {
	tests := []struct {
		level int
		want  int64
	}{
		{0, 0},
		{1, 100},
		{2, 382},
		{3, 901},
		{5, 2819},
	}
	for _, tt := range tests {
		if got := TotalXPForLevel(100, 1.5, tt.level); got != tt.want {
			t.Errorf("TotalXPForLevel(100, 1.5, %d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestLevelForTotalXP(t *testing.T) {
	tests := []struct {
		totalXP int64
		want    int
	}{
		{0, 0},
		{99, 0},
		{100, 1},
		{381, 1},
		{382, 2},
		{2818, 4},
		{2819, 5},
	}
	for _, tt := range tests {
		if got := LevelForTotalXP(100, 1.5, tt.totalXP); got != tt.want {
			t.Errorf("LevelForTotalXP(100, 1.5, %d) = %d, want %d", tt.totalXP, got, tt.want)
		}
	}
}

// The curve functions must agree with each other: the cumulative total for a
// level maps back onto exactly that level, and one XP less stays below it.
func TestCurveRoundTrip(t *testing.T) {
	for level := 1; level <= 25; level++ {
		total := TotalXPForLevel(100, 1.5, level)
		if got := LevelForTotalXP(100, 1.5, total); got != level {
			t.Errorf("level %d: LevelForTotalXP(%d) = %d", level, total, got)
		}
		if got := LevelForTotalXP(100, 1.5, total-1); got != level-1 {
			t.Errorf("level %d: LevelForTotalXP(%d) = %d, want %d", level, total-1, got, level-1)
		}
	}
}
