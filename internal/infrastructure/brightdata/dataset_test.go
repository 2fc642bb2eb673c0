package brightdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/datasets/v3/trigger", r.URL.Path)
		assert.Equal(t, "gd_test", r.URL.Query().Get("dataset_id"))
		assert.Equal(t, "true", r.URL.Query().Get("include_errors"))

		var inputs []triggerInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&inputs))
		require.Len(t, inputs, 1)
		assert.Equal(t, "https://www.amazon.com/x/dp/B000000001", inputs[0].URL)

		w.Write([]byte(`{"snapshot_id":"s_123"}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).Trigger(context.Background(), "gd_test", []string{"https://www.amazon.com/x/dp/B000000001"})
	require.NoError(t, err)
	assert.Equal(t, "s_123", id)
}

func TestTrigger_MissingSnapshotID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Trigger(context.Background(), "gd_test", []string{"u"})
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantLen int
		wantErr bool
	}{
		{name: "running job returns 202", status: http.StatusAccepted, body: `{"status":"running"}`, wantLen: 0},
		{name: "running status object", status: http.StatusOK, body: `{"status":"building"}`, wantLen: 0},
		{name: "finished job", status: http.StatusOK, body: `[{"review_text":"great"},{"review_text":"bad"}]`, wantLen: 2},
		{name: "empty list", status: http.StatusOK, body: `[]`, wantLen: 0},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/datasets/v3/snapshot/s_1", r.URL.Path)
				assert.Equal(t, "json", r.URL.Query().Get("format"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			records, err := newTestClient(server.URL).Snapshot(context.Background(), "s_1")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.wantLen)
		})
	}
}
