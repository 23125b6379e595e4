package reportimport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func pushBody(t *testing.T, data []byte) *bytes.Reader {
	t.Helper()
	var envelope PubSubPushEnvelope
	envelope.Message.Data = data
	envelope.Message.ID = "m-1"
	b, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return bytes.NewReader(b)
}

func TestPubSubPushHandlerAcksFinalOutcomes(t *testing.T) {
	var got []string
	orig := processJob
	processJob = func(ctx context.Context, im *Importer, jobID string) error {
		got = append(got, jobID)
		return errors.New("db unavailable")
	}
	t.Cleanup(func() { processJob = orig })

	r := gin.New()
	r.POST("/push", PubSubPushHandler(&Importer{}))

	cases := []struct {
		name string
		body *bytes.Reader
	}{
		{"not json", bytes.NewReader([]byte("nope"))},
		{"no job id", pushBody(t, []byte(`{"job_id":""}`))},
		{"bad payload", pushBody(t, []byte(`[1,2]`))},
		{"valid", pushBody(t, []byte(`{"job_id":"abc","correlation_id":"c-1"}`))},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/push", tc.body)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("%s: status = %d", tc.name, w.Code)
		}
	}
	if len(got) != 1 || got[0] != "abc" {
		t.Fatalf("processed jobs = %v", got)
	}
}

func TestPubSubPushHandlerNacksRetryableJobs(t *testing.T) {
	orig := processJob
	processJob = func(ctx context.Context, im *Importer, jobID string) error {
		return retryDelivery(ErrJobLocked)
	}
	t.Cleanup(func() { processJob = orig })

	r := gin.New()
	r.POST("/push", PubSubPushHandler(&Importer{}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/push", pushBody(t, []byte(`{"job_id":"abc"}`)))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 so the push is redelivered", w.Code)
	}
}

func multipartRequest(t *testing.T, fields map[string]string, filename string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write([]byte(kontorHeader + "\n"))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/report-imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestCreateImportHandlerRejectsBadInput(t *testing.T) {
	r := gin.New()
	r.POST("/api/report-imports", CreateImportHandler())

	cases := []struct {
		name     string
		fields   map[string]string
		filename string
	}{
		{"missing distributor", map[string]string{}, "r.csv"},
		{"unknown distributor", map[string]string{"distributor": "spotify"}, "r.csv"},
		{"bad month", map[string]string{"distributor": "kontor", "reporting_month": "someday"}, "r.csv"},
		{"missing file", map[string]string{"distributor": "kontor"}, ""},
		{"unsupported extension", map[string]string{"distributor": "believe"}, "r.pdf"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, tc.fields, tc.filename))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d body=%s", tc.name, w.Code, w.Body.String())
		}
	}
}

func TestUnlinkedReportHandlersRejectBadQuery(t *testing.T) {
	r := gin.New()
	r.GET("/api/unlinked-reports", ListUnlinkedReportsHandler())
	r.GET("/api/unlinked-reports/:id/details", GetUnlinkedReportDetailsHandler())

	for _, target := range []string{
		"/api/unlinked-reports?distributor=spotify",
		"/api/unlinked-reports?limit=ten",
		"/api/unlinked-reports/abc/details",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d", target, w.Code)
		}
	}
}
