package recognition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MeKo-Tech/docscan/internal/engine"
	"github.com/MeKo-Tech/docscan/internal/engine/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policy(threshold float64) Policy {
	return Policy{Enabled: true, Threshold: threshold, Timeout: time.Second}
}

func request(p Policy) Request {
	return Request{
		Image:     engine.Input{Data: []byte("enhanced")},
		Raw:       []byte("raw"),
		Languages: []string{"eng"},
		Policy:    p,
	}
}

func TestRecognize_LowConfidenceUsesBetterFallback(t *testing.T) {
	local := enginetest.New("tesseract", "blurry text", 35)
	fb := enginetest.New("google-vision", "crisp text", 70)

	out, err := New(local, fb).Recognize(context.Background(), request(policy(50)))
	require.NoError(t, err)
	assert.Equal(t, Fallback, out.Source)
	assert.Equal(t, "crisp text", out.Text)
	assert.InDelta(t, 70.0, out.Confidence, 0)
	assert.Equal(t, "google-vision", out.Engine)
	assert.True(t, out.FallbackUsed())
	assert.Nil(t, out.FallbackErr)
}

func TestRecognize_FallbackTimeoutKeepsLocal(t *testing.T) {
	local := enginetest.New("tesseract", "blurry text", 35)
	fb := enginetest.New("google-vision", "crisp text", 70)
	fb.Delay = time.Second

	p := policy(50)
	p.Timeout = 20 * time.Millisecond
	out, err := New(local, fb).Recognize(context.Background(), request(p))
	require.NoError(t, err)
	assert.Equal(t, Local, out.Source)
	assert.Equal(t, "blurry text", out.Text)
	assert.False(t, out.FallbackUsed())
	assert.True(t, out.FallbackAttempted)
	require.NotNil(t, out.FallbackErr)
	assert.True(t, out.FallbackErr.Timeout)
}

func TestRecognize_TieKeepsLocal(t *testing.T) {
	local := enginetest.New("tesseract", "local", 40)
	fb := enginetest.New("google-vision", "remote", 40)

	out, err := New(local, fb).Recognize(context.Background(), request(policy(50)))
	require.NoError(t, err)
	assert.Equal(t, Local, out.Source)
	assert.Equal(t, "local", out.Text)
	assert.Equal(t, 1, fb.Calls())
}

func TestRecognize_EmptyFallbackTextKeepsLocal(t *testing.T) {
	local := enginetest.New("tesseract", "local", 10)
	fb := enginetest.New("google-vision", "   ", 99)

	out, err := New(local, fb).Recognize(context.Background(), request(policy(50)))
	require.NoError(t, err)
	assert.Equal(t, Local, out.Source)
}

func TestRecognize_FallbackErrorEqualsLocalOutcome(t *testing.T) {
	local := enginetest.New("tesseract", "  local text \n", 12)
	fb := enginetest.Failing("google-vision", errors.New("quota exceeded"))

	withFB, err := New(local, fb).Recognize(context.Background(), request(policy(50)))
	require.NoError(t, err)
	localOnly, err := New(local, nil).Recognize(context.Background(), request(policy(50)))
	require.NoError(t, err)

	assert.Equal(t, localOnly.Text, withFB.Text)
	assert.Equal(t, "local text", withFB.Text)
	assert.InDelta(t, localOnly.Confidence, withFB.Confidence, 0)
	assert.Equal(t, localOnly.Engine, withFB.Engine)
	assert.Equal(t, localOnly.Source, withFB.Source)
	require.NotNil(t, withFB.FallbackErr)
	assert.False(t, withFB.FallbackErr.Timeout)
	assert.EqualError(t, errors.Unwrap(withFB.FallbackErr), "quota exceeded")
}

func TestRecognize_SkipsFallback(t *testing.T) {
	cases := []struct {
		name   string
		conf   float64
		policy Policy
		withFB bool
	}{
		{"disabled", 10, Policy{Enabled: false, Threshold: 50}, true},
		{"absent", 10, policy(50), false},
		{"at threshold", 50, policy(50), true},
		{"above threshold", 90, policy(50), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			local := enginetest.New("tesseract", "text", tc.conf)
			fb := enginetest.New("google-vision", "better", 100)
			var o *Orchestrator
			if tc.withFB {
				o = New(local, fb)
			} else {
				o = New(local, nil)
			}
			out, err := o.Recognize(context.Background(), request(tc.policy))
			require.NoError(t, err)
			assert.Equal(t, Local, out.Source)
			assert.False(t, out.FallbackAttempted)
			assert.Equal(t, 0, fb.Calls())
		})
	}
}

func TestRecognize_FallbackReceivesRawBytesByDefault(t *testing.T) {
	local := enginetest.New("tesseract", "x", 1)
	fb := enginetest.New("google-vision", "y", 2)
	called := false
	req := request(policy(50))
	req.OnFallback = func() { called = true }

	_, err := New(local, fb).Recognize(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []byte("raw"), fb.LastInput().Data)
	assert.Equal(t, []byte("enhanced"), local.LastInput().Data)

	req.Policy.SendEnhanced = true
	_, err = New(local, fb).Recognize(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("enhanced"), fb.LastInput().Data)
}

func TestRecognize_LocalFailure(t *testing.T) {
	local := enginetest.Failing("tesseract", errors.New("tessdata missing"))
	_, err := New(local, nil).Recognize(context.Background(), request(policy(50)))
	var re *RecognitionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "tesseract", re.Engine)

	_, err = New(nil, nil).Recognize(context.Background(), request(policy(50)))
	require.ErrorAs(t, err, &re)
}

func TestRecognize_LocalCancelled(t *testing.T) {
	local := enginetest.New("tesseract", "x", 90)
	local.Delay = time.Second
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(local, nil).Recognize(ctx, request(policy(50)))
	require.ErrorIs(t, err, context.Canceled)
	var re *RecognitionError
	assert.False(t, errors.As(err, &re))
}
