package vision

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/smartwaitd/internal/capture"
)

func TestEncodeJPEG_SmallFrameKeepsDimensions(t *testing.T) {
	frame := &capture.Frame{Width: 320, Height: 200, Pix: make([]byte, 4*320*200)}

	data, err := encodeJPEG(frame)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())
}

func TestEncodeJPEG_LargeFrameShrunk(t *testing.T) {
	frame := &capture.Frame{Width: 1920, Height: 1080, Pix: make([]byte, 4*1920*1080)}

	data, err := encodeJPEG(frame)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), frameMaxDim)
	assert.LessOrEqual(t, img.Bounds().Dy(), frameMaxDim)
}

func TestMockEvaluator_ScriptAndCount(t *testing.T) {
	mock := NewMockEvaluator("NO: waiting", "YES: done")

	r1, err := mock.Evaluate(nil, testFrame(), "c")
	require.NoError(t, err)
	r2, err := mock.Evaluate(nil, testFrame(), "c")
	require.NoError(t, err)
	r3, err := mock.Evaluate(nil, testFrame(), "c")
	require.NoError(t, err)

	assert.Equal(t, "NO: waiting", r1)
	assert.Equal(t, "YES: done", r2)
	assert.Equal(t, "YES: done", r3, "last reply repeats")
	assert.Equal(t, 3, mock.Calls())
}
