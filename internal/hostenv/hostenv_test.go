package hostenv

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ekisa-team/speakpaint/internal/backend"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	a := m.Called(name, args)
	out, _ := a.Get(0).([]byte)
	return out, nil, a.Error(1)
}

func TestCheckFFmpeg(t *testing.T) {
	runner := new(mockRunner)
	runner.On("Run", "ffmpeg", []string{"-version"}).
		Return([]byte("ffmpeg version 6.1.1\nbuilt with gcc"), nil).Once()

	assert.True(t, NewCheckerWithRunner(runner).CheckFFmpeg(context.Background()))

	runner.On("Run", "ffmpeg", []string{"-version"}).
		Return(nil, errors.New("executable file not found in $PATH")).Once()

	assert.False(t, NewCheckerWithRunner(runner).CheckFFmpeg(context.Background()))
	runner.AssertExpectations(t)
}

func TestDetectDevice(t *testing.T) {
	tests := []struct {
		name       string
		preference string
		smiOut     []byte
		smiErr     error
		want       backend.Device
		probes     bool
	}{
		{name: "forced cpu", preference: "cpu", want: backend.DeviceCPU},
		{name: "forced cuda", preference: "CUDA", want: backend.DeviceCUDA},
		{
			name:       "auto with gpu",
			preference: "auto",
			smiOut:     []byte("GPU 0: NVIDIA GeForce RTX 3060 (UUID: GPU-1234)\n"),
			want:       backend.DeviceCUDA,
			probes:     true,
		},
		{
			name:       "auto without driver",
			preference: "",
			smiErr:     errors.New("not found"),
			want:       backend.DeviceCPU,
			probes:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := new(mockRunner)
			if tt.probes {
				runner.On("Run", "nvidia-smi", []string{"-L"}).Return(tt.smiOut, tt.smiErr).Once()
			}

			got := NewCheckerWithRunner(runner).DetectDevice(context.Background(), tt.preference)
			assert.Equal(t, tt.want, got)
			runner.AssertExpectations(t)
		})
	}
}
