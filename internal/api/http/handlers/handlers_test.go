package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopio/feedback-tracker/internal/observability"
	"github.com/loopio/feedback-tracker/internal/service"
)

func captureUpdate(t *testing.T, req *http.Request) service.FeedbackUpdate {
	t.Helper()
	var got service.FeedbackUpdate
	app := fiber.New()
	app.Put("/feedbacks/:id", func(c *fiber.Ctx) error {
		in, err := parseFeedbackUpdate(c, 1024)
		if err != nil {
			return err
		}
		got = in
		return c.SendStatus(http.StatusNoContent)
	})
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	return got
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPut, "/feedbacks/1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type part struct {
	name, value string
	file        []byte
	contentType string
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		if p.file == nil {
			require.NoError(t, w.WriteField(p.name, p.value))
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+p.name+`"; filename="`+p.value+`"`)
		h.Set("Content-Type", p.contentType)
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write(p.file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPut, "/feedbacks/1", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestParseFeedbackUpdate_JSONAssignment(t *testing.T) {
	absent := captureUpdate(t, jsonRequest(`{"title":"New"}`))
	require.NotNil(t, absent.Title)
	assert.Equal(t, "New", *absent.Title)
	assert.False(t, absent.AssignedTo.Set)

	cleared := captureUpdate(t, jsonRequest(`{"assigned_to":null}`))
	assert.True(t, cleared.AssignedTo.Set)
	assert.Nil(t, cleared.AssignedTo.Value)

	assigned := captureUpdate(t, jsonRequest(`{"assigned_to":"dev-1","status":"In Progress"}`))
	assert.True(t, assigned.AssignedTo.Set)
	require.NotNil(t, assigned.AssignedTo.Value)
	assert.Equal(t, "dev-1", *assigned.AssignedTo.Value)
	require.NotNil(t, assigned.Status)
	assert.Equal(t, "In Progress", *assigned.Status)
}

func TestParseFeedbackUpdate_MultipartAssignmentAndFile(t *testing.T) {
	got := captureUpdate(t, multipartRequest(t,
		part{name: "assigned_to", value: "null"},
		part{name: "estimated_resolution_date", value: "2026-03-01"},
		part{name: "file", value: "shot.png", file: []byte("png-bytes"), contentType: "image/png"},
	))
	assert.True(t, got.AssignedTo.Set)
	assert.Nil(t, got.AssignedTo.Value)
	require.NotNil(t, got.EstimatedResolutionDate)
	assert.Equal(t, 2026, got.EstimatedResolutionDate.Year())
	require.NotNil(t, got.File)
	assert.Equal(t, "shot.png", got.File.Filename)
	assert.Equal(t, "image/png", got.File.ContentType)
	assert.Equal(t, int64(9), got.File.Size())

	untouched := captureUpdate(t, multipartRequest(t, part{name: "priority", value: "High"}))
	assert.False(t, untouched.AssignedTo.Set)
	assert.Nil(t, untouched.File)
}

func TestParseDate(t *testing.T) {
	empty := ""
	d, err := parseDate(&empty)
	require.NoError(t, err)
	assert.Nil(t, d)

	rfc := "2026-01-02T15:04:05Z"
	d, err = parseDate(&rfc)
	require.NoError(t, err)
	assert.Equal(t, 15, d.Hour())

	bad := "next week"
	_, err = parseDate(&bad)
	assert.Error(t, err)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type connectionCount int

func (n connectionCount) ClientCount() int { return int(n) }

func TestHealthHandler_Ready(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	newApp := func(deps map[string]Pinger) *fiber.App {
		h := NewHealthHandler("feedback-tracker", "test", deps, observability.NewMetrics(), connectionCount(3))
		app := fiber.New()
		app.Get("/health/live", h.Live)
		app.Get("/health/ready", h.Ready)
		app.Get("/health/metrics", h.Metrics)
		return app
	}

	app := newApp(map[string]Pinger{"postgres": ok, "redis": ok})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	app = newApp(map[string]Pinger{"postgres": ok, "redis": down})
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload struct {
		Error struct {
			Code    string            `json:"code"`
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", payload.Error.Code)
	assert.Equal(t, "ok", payload.Error.Details["postgres"])
	assert.Equal(t, "connection refused", payload.Error.Details["redis"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/health/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	var metrics struct {
		Data struct {
			Counters            observability.Snapshot `json:"counters"`
			RealtimeConnections int                    `json:"realtime_connections"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &metrics))
	assert.Equal(t, 3, metrics.Data.RealtimeConnections)
}

func TestHealthHandler_MetricsWithoutHub(t *testing.T) {
	h := NewHealthHandler("feedback-tracker", "test", nil, nil, nil)
	app := fiber.New()
	app.Get("/health/metrics", h.Metrics)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"realtime_connections":0`)
}
