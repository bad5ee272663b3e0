package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"promptcanvas/internal/config"
	"promptcanvas/internal/logger"
)

// mockHTTPClient captures the outgoing request and replays a canned response.
type mockHTTPClient struct {
	lastRequest *http.Request
	lastBody    []byte
	status      int
	response    string
	err         error
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.lastRequest = req
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.status,
		Body:       io.NopCloser(bytes.NewBufferString(m.response)),
	}, nil
}

func newTestClient(mock *mockHTTPClient) *Client {
	c := NewClient(config.TogetherConfig{
		APIKey:  "tk-test",
		BaseURL: "https://api.together.test",
		Model:   "black-forest-labs/FLUX.1-schnell-Free",
	}, logger.New("error"))
	c.httpClient = mock
	return c
}

func successBody(image []byte) string {
	return fmt.Sprintf(`{"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(image))
}

func TestGenerateImage(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G'}
	mock := &mockHTTPClient{status: http.StatusOK, response: successBody(image)}
	c := newTestClient(mock)

	result, err := c.GenerateImage(context.Background(), Request{Prompt: "a lighthouse at dusk"})
	require.NoError(t, err)
	assert.Equal(t, image, result.ImageData)
	assert.Equal(t, 1024, result.Width)
	assert.Equal(t, 4, result.Steps)

	require.NotNil(t, mock.lastRequest)
	assert.Equal(t, "Bearer tk-test", mock.lastRequest.Header.Get("Authorization"))
	assert.Equal(t, "https://api.together.test/v1/images/generations", mock.lastRequest.URL.String())

	var payload map[string]any
	require.NoError(t, json.Unmarshal(mock.lastBody, &payload))
	assert.Equal(t, "a lighthouse at dusk", payload["prompt"])
	assert.Equal(t, "b64_json", payload["response_format"])
}

func TestGenerateImageAppliesStylePreset(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK, response: successBody([]byte("x"))}
	c := newTestClient(mock)

	_, err := c.GenerateImage(context.Background(), Request{Prompt: "a castle", Style: "anime"})
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(mock.lastBody, &payload))
	assert.Equal(t, "a castle, anime style, manga, detailed, vibrant colors", payload["prompt"])
}

func TestGenerateImageCapsSteps(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK, response: successBody([]byte("x"))}
	c := newTestClient(mock)

	result, err := c.GenerateImage(context.Background(), Request{Prompt: "p", Steps: 50})
	require.NoError(t, err)
	assert.Equal(t, 4, result.Steps)
}

func TestGenerateImageErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, ErrInvalidRequest},
		{http.StatusUnauthorized, ErrAuthFailed},
		{http.StatusTooManyRequests, ErrRateLimited},
	}
	for _, tc := range cases {
		mock := &mockHTTPClient{status: tc.status, response: `{"error":{"message":"nope"}}`}
		c := newTestClient(mock)

		_, err := c.GenerateImage(context.Background(), Request{Prompt: "p"})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestGenerateImageEmptyResponse(t *testing.T) {
	mock := &mockHTTPClient{status: http.StatusOK, response: `{"data":[]}`}
	c := newTestClient(mock)

	_, err := c.GenerateImage(context.Background(), Request{Prompt: "p"})
	assert.Error(t, err)
}

func TestGenerateImageTimeout(t *testing.T) {
	mock := &mockHTTPClient{err: context.DeadlineExceeded}
	c := newTestClient(mock)

	_, err := c.GenerateImage(context.Background(), Request{Prompt: "p"})
	assert.ErrorIs(t, err, ErrTimeout)
}
