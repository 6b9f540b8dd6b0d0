package core

import "sync"

const AVG_COUNT uint8 = 30

// FrameMetrics keeps rolling averages of CPU frame time and resolved GPU time.
type FrameMetrics struct {
	mu sync.Mutex

	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAvg              float64
	gpuTimes           [AVG_COUNT]float64
	gpuAvg             float64
	gpuCounter         uint8
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

// Update takes the elapsed frame time in seconds.
func (m *FrameMetrics) Update(frameElapsedTime float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAvg = average(m.msTimes[:])
	}
	m.frameAVGCounter = (m.frameAVGCounter + 1) % AVG_COUNT

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

// UpdateGPU records the total GPU time of one resolved frame, in milliseconds.
func (m *FrameMetrics) UpdateGPU(ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gpuTimes[m.gpuCounter] = ms
	if m.gpuCounter == AVG_COUNT-1 {
		m.gpuAvg = average(m.gpuTimes[:])
	}
	m.gpuCounter = (m.gpuCounter + 1) % AVG_COUNT
}

func (m *FrameMetrics) FPS() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.msAvg
}

func (m *FrameMetrics) GPUTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gpuAvg
}

func average(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
