package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/emiwiz/internal/model"
)

type capturedRequest struct {
	Path        string
	ContentType string
	Fields      map[string]string
	Files       map[string]string
	JSON        map[string]any
}

type backend struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	body     string
}

func newBackend(t *testing.T, status int, body string) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) handle(w http.ResponseWriter, r *http.Request) {
	captured := capturedRequest{
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Fields:      map[string]string{},
		Files:       map[string]string{},
	}
	if strings.HasPrefix(captured.ContentType, "multipart/") {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				captured.Fields[k] = v[0]
			}
			for k, fhs := range r.MultipartForm.File {
				f, err := fhs[0].Open()
				if err == nil {
					data, _ := io.ReadAll(f)
					_ = f.Close()
					captured.Files[k] = fhs[0].Filename + ":" + string(data)
				}
			}
		}
	} else {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil {
			captured.JSON = payload
		}
	}
	b.mu.Lock()
	b.requests = append(b.requests, captured)
	status, body := b.status, b.body
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (b *backend) last(t *testing.T) capturedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.requests)
	return b.requests[len(b.requests)-1]
}

func (b *backend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

type memoryAudit struct {
	records []model.UploadRecord
}

func (m *memoryAudit) RecordUpload(_ context.Context, rec model.UploadRecord) (int64, error) {
	m.records = append(m.records, rec)
	return int64(len(m.records)), nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestClassificationMultipartStoresTransactionID(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK, `{"transaction_id":"tx-42"}`)
	txs := NewMemoryTransactions("")
	audit := &memoryAudit{}
	c := New(Options{BaseURL: srv.URL, Transactions: txs, Audit: audit})

	file := writeFile(t, "classification.csv", "Type,Count\nTransit Bus,5\n")
	resp, err := c.Classification(context.Background(), ClassificationRequest{
		City: "Atlanta", BaseYear: "2025", File: file,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-42", resp.TransactionID)

	got := b.last(t)
	assert.Equal(t, EndpointClassification, got.Path)
	assert.Equal(t, "Atlanta", got.Fields["main_city"])
	assert.Equal(t, "2025", got.Fields["year"])
	assert.Equal(t, DefaultUserID, got.Fields["user_id"])
	assert.Equal(t, model.DefaultTransactionID, got.Fields["transaction_id"])
	assert.Equal(t, "classification.csv:Type,Count\nTransit Bus,5\n", got.Files["file"])

	stored, err := txs.TransactionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tx-42", stored)

	require.Len(t, audit.records, 1)
	assert.Equal(t, http.StatusOK, audit.records[0].Status)
	assert.Equal(t, model.DefaultTransactionID, audit.records[0].TransactionID)
}

func TestClassificationJSONWhenNoSourceFile(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK, `{"transaction_id":"none"}`)
	txs := NewMemoryTransactions("tx-prev")
	c := New(Options{BaseURL: srv.URL, Transactions: txs})

	_, err := c.Classification(context.Background(), ClassificationRequest{
		City:        "NewYork",
		BaseYear:    "2024",
		VehicleType: "Transit Bus",
		Headers:     model.Row{model.StringValue("Type"), model.StringValue("Count")},
		Rows:        []model.Row{{model.StringValue("Transit Bus"), model.NumberValue(5)}},
	})
	require.NoError(t, err)

	got := b.last(t)
	assert.Equal(t, "application/json", got.ContentType)
	assert.Equal(t, "NewYork", got.JSON["city"])
	assert.Equal(t, "2024", got.JSON["base_year"])
	assert.Equal(t, "Transit Bus", got.JSON["vehicle_type"])
	assert.Equal(t, "tx-prev", got.JSON["transaction_id"])
	assert.Equal(t, []any{"Type", "Count"}, got.JSON["classification_table_headers"])
	assert.Equal(t, []any{[]any{"Transit Bus", float64(5)}}, got.JSON["classification_table_data"])

	stored, err := txs.TransactionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tx-prev", stored, "a \"none\" transaction id must not overwrite the stored one")
}

func TestTrafficVolumeRequiresBothFilesBeforeIO(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK, `{}`)
	c := New(Options{BaseURL: srv.URL})

	_, err := c.TrafficVolume(context.Background(), TrafficVolumeRequest{City: "Atlanta", VolumeFile: "volume.csv"})
	require.ErrorIs(t, err, ErrMissingFiles)
	assert.Equal(t, 0, b.count())
}

func TestTrafficVolumeSendsBothFiles(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK, `{"transaction_id":"tx-7"}`)
	c := New(Options{BaseURL: srv.URL})

	volume := writeFile(t, "volume.csv", "Tract,Volume\nA1,120\n")
	mfd := writeFile(t, "mfd.csv", "Tract,a,b\nA1,0.5,0.9\n")
	_, err := c.TrafficVolume(context.Background(), TrafficVolumeRequest{City: "Atlanta", VolumeFile: volume, MFDFile: mfd})
	require.NoError(t, err)

	got := b.last(t)
	assert.Equal(t, EndpointTrafficVolume, got.Path)
	assert.Equal(t, "Atlanta", got.Fields["city_name"])
	assert.Contains(t, got.Files["file1"], "volume.csv:")
	assert.Contains(t, got.Files["file2"], "mfd.csv:")
	assert.Equal(t, "tx-7", c.CurrentTransactionID(context.Background()))
}

func TestProjectedTrafficSendsTableRecords(t *testing.T) {
	b, srv := newBackend(t, http.StatusOK, `{}`)
	c := New(Options{BaseURL: srv.URL})

	file := writeFile(t, "projected.csv", "Tract,Volume\nA1,150\n")
	_, err := c.ProjectedTraffic(context.Background(), ProjectedTrafficRequest{
		City: "Seattle",
		Year: "2040",
		File: file,
		Table: model.Table{
			Headers: model.Row{model.StringValue("Tract"), model.StringValue("Volume")},
			Rows:    []model.Row{{model.StringValue("A1"), model.NumberValue(150)}},
		},
	})
	require.NoError(t, err)

	got := b.last(t)
	assert.Equal(t, "2040", got.Fields["year"])
	assert.JSONEq(t, `[{"Tract":"A1","Volume":150}]`, got.Fields["file_table"])
	assert.Contains(t, got.Files["file_csv"], "projected.csv:")
}

func TestHTTPErrorCarriesBackendMessage(t *testing.T) {
	_, srv := newBackend(t, http.StatusBadRequest, `{"error":"MFD file has no Tract ID column"}`)
	audit := &memoryAudit{}
	c := New(Options{BaseURL: srv.URL, Audit: audit})

	pen := writeFile(t, "pen.csv", "Year,Rate\n")
	_, err := c.Penetration(context.Background(), PenetrationRequest{File: pen})
	require.Error(t, err)

	herr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, herr.StatusCode)
	assert.Equal(t, "MFD file has no Tract ID column", herr.Message)
	require.Len(t, audit.records, 1)
	assert.Equal(t, http.StatusBadRequest, audit.records[0].Status)
	assert.NotEmpty(t, audit.records[0].Error)
}

type failingClient struct{ err error }

func (f failingClient) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestNetworkErrorIsWrapped(t *testing.T) {
	netErr := errors.New("connection refused")
	c := New(Options{BaseURL: "http://backend.invalid", Client: failingClient{err: netErr}})

	vol := writeFile(t, "v.csv", "a\n")
	mfd := writeFile(t, "m.csv", "b\n")
	_, err := c.TrafficVolume(context.Background(), TrafficVolumeRequest{City: "Atlanta", VolumeFile: vol, MFDFile: mfd})
	require.ErrorIs(t, err, netErr)
	_, isHTTP := IsHTTPError(err)
	assert.False(t, isHTTP)
}

func TestFetchTrafficPlot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plot/traffic/Atlanta/2030" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	t.Cleanup(srv.Close)
	c := New(Options{BaseURL: srv.URL + "/"})

	data, contentType, err := c.FetchTrafficPlot(context.Background(), "Atlanta", "2030")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "traffic_Atlanta_2030.png", PlotFileName("Atlanta", "2030", contentType))

	_, _, err = c.FetchTrafficPlot(context.Background(), "Nowhere", "2030")
	herr, ok := IsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, herr.StatusCode)
}

func TestLateReplyDoesNotOverwriteNewerTransaction(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := "tx-new"
		if r.FormValue("city") == "Old" {
			close(arrived)
			<-release
			id = "tx-old"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction_id":"` + id + `"}`))
	}))
	t.Cleanup(srv.Close)
	store := NewMemoryTransactions("")
	c := New(Options{BaseURL: srv.URL, Transactions: store})
	ctx := context.Background()
	pen := writeFile(t, "pen.csv", "Year,Rate\n2030,0.4\n")

	done := make(chan error, 1)
	go func() {
		_, err := c.Penetration(ctx, PenetrationRequest{City: "Old", File: pen})
		done <- err
	}()
	<-arrived

	_, err := c.Penetration(ctx, PenetrationRequest{City: "New", File: pen})
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, "tx-new", c.CurrentTransactionID(ctx))
}

func TestBaseURLIsNormalized(t *testing.T) {
	assert.Equal(t, DefaultBaseURL, New(Options{}).BaseURL())
	assert.Equal(t, "http://backend:5003", New(Options{BaseURL: " http://backend:5003/ "}).BaseURL())
}
