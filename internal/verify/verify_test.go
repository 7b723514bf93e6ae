package verify

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/On-Jun9/PixelPipe/internal/codec"
)

func writeImage(t *testing.T, dir, name string, w, h int, f codec.Format) string {
	t.Helper()
	data, err := codec.New().Encode(image.NewRGBA(image.Rect(0, 0, w, h)), f, codec.Options{})
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// TestVerifierVerify_Success는 정상 출력 파일이 검증을 통과하는지 검증합니다.
func TestVerifierVerify_Success(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "out.png", 10, 7, codec.PNG)

	v := New(codec.New())
	assert.NoError(t, v.Verify(path, image.Rect(0, 0, 10, 7)))
}

// TestVerifierVerify_DimensionMismatch는 크기가 다르면 실패하는지 검증합니다.
func TestVerifierVerify_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := writeImage(t, dir, "out.bmp", 10, 7, codec.BMP)

	err := New(codec.New()).Verify(path, image.Rect(0, 0, 7, 10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension mismatch")
}

// TestVerifierVerify_Corrupt는 디코딩할 수 없는 출력 파일을 거부하는지 검증합니다.
func TestVerifierVerify_Corrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.png")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0644))

	err := New(codec.New()).Verify(path, image.Rect(0, 0, 1, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output does not decode")
}

// TestVerifierVerify_EmptyOrMissing는 비어 있거나 없는 출력 파일을 거부하는지 검증합니다.
func TestVerifierVerify_EmptyOrMissing(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.png")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	v := New(codec.New())
	assert.ErrorContains(t, v.Verify(empty, image.Rect(0, 0, 1, 1)), "empty")
	assert.ErrorContains(t, v.Verify(filepath.Join(dir, "missing.png"), image.Rect(0, 0, 1, 1)), "not readable")
}
