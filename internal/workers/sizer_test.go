package workers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func load(v float64) *float64 { return &v }

// TestOptimalWorkers는 코어 수와 부하에 따른 워커 수 계산을 검증합니다.
func TestOptimalWorkers(t *testing.T) {
	tests := []struct {
		name  string
		cores int
		load  *float64
		want  int
	}{
		{"eight cores no load info", 8, nil, 4},
		{"eight cores high load", 8, load(90), 2},
		{"one core", 1, nil, 1},
		{"zero cores", 0, nil, 1},
		{"load at threshold is not high", 8, load(75), 4},
		{"two cores high load keeps one", 2, load(99), 1},
		{"odd cores round down", 7, load(10), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OptimalWorkers(tt.cores, tt.load))
		})
	}
}

type fakeSampler struct {
	cores int
	load  *float64
}

func (f fakeSampler) Sample(context.Context) (int, *float64) { return f.cores, f.load }

// TestRecommend_UsesSampler는 샘플러 결과가 그대로 계산에 쓰이는지 검증합니다.
func TestRecommend_UsesSampler(t *testing.T) {
	assert.Equal(t, 8, Recommend(context.Background(), fakeSampler{cores: 16}))
	assert.Equal(t, 4, Recommend(context.Background(), fakeSampler{cores: 16, load: load(80)}))
}

// TestSystemSampler_ReportsCores는 실제 호스트 샘플링이 최소 1코어를 보고하는지 검증합니다.
func TestSystemSampler_ReportsCores(t *testing.T) {
	s := &SystemSampler{Interval: 0}
	cores, _ := s.Sample(context.Background())
	assert.GreaterOrEqual(t, cores, 1)
	assert.GreaterOrEqual(t, Recommend(context.Background(), s), 1)
}
