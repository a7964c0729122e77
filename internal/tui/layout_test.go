package tui

import "testing"

func TestCalculate(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		height   int
		chart    bool
		tooSmall bool
		recvH    int
		chartH   int
	}{
		{name: "80x24 no chart", width: 80, height: 24, recvH: 21},
		{name: "80x24 chart", width: 80, height: 24, chart: true, recvH: 13, chartH: 8}, // 21*40/100 = 8
		{name: "120x50 chart clamps high", width: 120, height: 50, chart: true, recvH: 31, chartH: 16},
		{name: "40x10 chart clamps low", width: 40, height: 10, chart: true, recvH: 1, chartH: 6},
		{name: "39x10 too small (width)", width: 39, height: 10, tooSmall: true},
		{name: "40x9 too small (height)", width: 40, height: 9, tooSmall: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Calculate(tt.width, tt.height, tt.chart)
			if l.TooSmall != tt.tooSmall {
				t.Fatalf("TooSmall = %v, want %v", l.TooSmall, tt.tooSmall)
			}
			if tt.tooSmall {
				return
			}
			if l.Receive.Height != tt.recvH {
				t.Errorf("Receive.Height = %d, want %d", l.Receive.Height, tt.recvH)
			}
			if l.Chart.Height != tt.chartH {
				t.Errorf("Chart.Height = %d, want %d", l.Chart.Height, tt.chartH)
			}

			// Rows must tile the screen without gaps or overlap.
			rows := []Rect{l.Header, l.Receive, l.Chart, l.Input, l.Footer}
			y := 0
			for _, r := range rows {
				if r.Height == 0 {
					continue
				}
				if r.Y != y {
					t.Errorf("rect %+v starts at %d, want %d", r, r.Y, y)
				}
				if r.Width != tt.width {
					t.Errorf("rect %+v width != %d", r, tt.width)
				}
				y += r.Height
			}
			if y != tt.height {
				t.Errorf("rows cover %d lines, want %d", y, tt.height)
			}
		})
	}
}

func TestInnerDims(t *testing.T) {
	w, h := innerDims(Rect{Width: 10, Height: 5})
	if w != 8 || h != 3 {
		t.Errorf("innerDims = %dx%d, want 8x3", w, h)
	}
	w, h = innerDims(Rect{Width: 1, Height: 0})
	if w != 1 || h != 1 {
		t.Errorf("innerDims clamps to 1x1, got %dx%d", w, h)
	}
}
