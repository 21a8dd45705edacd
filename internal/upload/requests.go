package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/verte-zerg/emiwiz/internal/model"
)

// ErrMissingFiles is returned when a multi-file upload lacks one of its files.
var ErrMissingFiles = errors.New("missing required files")

// ClassificationRequest uploads the vehicle classification dataset. When File is
// empty the parsed table is sent as JSON instead of the source file.
type ClassificationRequest struct {
	City        string
	BaseYear    string
	VehicleType string
	File        string
	Headers     model.Row
	Rows        []model.Row
}

// PenetrationRequest uploads the projected penetration rate file.
type PenetrationRequest struct {
	City          string
	BaseYear      string
	VehicleType   string
	ProjectedYear string
	File          string
}

// TrafficVolumeRequest uploads the traffic volume and MFD parameter files.
type TrafficVolumeRequest struct {
	City       string
	VolumeFile string
	MFDFile    string
}

// ProjectedTrafficRequest uploads the projected demand file and its parsed table.
type ProjectedTrafficRequest struct {
	City  string
	Year  string
	File  string
	Table model.Table
}

// ProcessTrafficRequest asks the backend to estimate speeds from MFD parameters.
type ProcessTrafficRequest struct {
	City           string
	Year           string
	ParametersFile string
}

type classificationJSON struct {
	City        string      `json:"city"`
	BaseYear    string      `json:"base_year"`
	VehicleType string      `json:"vehicle_type"`
	Data        []model.Row `json:"classification_table_data"`
	Headers     model.Row   `json:"classification_table_headers"`
	UserID      string      `json:"user_id"`
	Transaction string      `json:"transaction_id"`
}

// Classification posts the vehicle classification step.
func (c *Coordinator) Classification(ctx context.Context, req ClassificationRequest) (Response, error) {
	txID := c.CurrentTransactionID(ctx)
	if req.File == "" {
		rows := req.Rows
		if rows == nil {
			rows = []model.Row{}
		}
		headers := req.Headers
		if headers == nil {
			headers = model.Row{}
		}
		body, err := json.Marshal(classificationJSON{
			City:        req.City,
			BaseYear:    req.BaseYear,
			VehicleType: req.VehicleType,
			Data:        rows,
			Headers:     headers,
			UserID:      c.userID,
			Transaction: txID,
		})
		if err != nil {
			return Response{}, fmt.Errorf("failed to encode classification table: %w", err)
		}
		return c.send(ctx, EndpointClassification, txID, "application/json", body)
	}

	form := newForm()
	form.field("main_city", req.City)
	form.field("year", req.BaseYear)
	form.field("user_id", c.userID)
	if err := form.file("file", req.File); err != nil {
		return Response{}, err
	}
	form.field("transaction_id", txID)
	return c.sendForm(ctx, EndpointClassification, txID, form)
}

// Penetration posts the projected penetration rate step.
func (c *Coordinator) Penetration(ctx context.Context, req PenetrationRequest) (Response, error) {
	if req.File == "" {
		return Response{}, fmt.Errorf("penetration rate file: %w", ErrMissingFiles)
	}
	txID := c.CurrentTransactionID(ctx)
	form := newForm()
	form.field("city", req.City)
	form.field("base_year", req.BaseYear)
	form.field("vehicle_type", req.VehicleType)
	form.field("projected_year", req.ProjectedYear)
	form.field("transaction_id", txID)
	form.field("user_id", c.userID)
	if err := form.file("file", req.File); err != nil {
		return Response{}, err
	}
	return c.sendForm(ctx, EndpointPenetration, txID, form)
}

// TrafficVolume posts the traffic volume step. Both files are required.
func (c *Coordinator) TrafficVolume(ctx context.Context, req TrafficVolumeRequest) (Response, error) {
	if req.VolumeFile == "" || req.MFDFile == "" {
		return Response{}, fmt.Errorf("traffic volume and MFD parameter files: %w", ErrMissingFiles)
	}
	txID := c.CurrentTransactionID(ctx)
	form := newForm()
	form.field("city_name", req.City)
	form.field("transaction_id", txID)
	if err := form.file("file1", req.VolumeFile); err != nil {
		return Response{}, err
	}
	if err := form.file("file2", req.MFDFile); err != nil {
		return Response{}, err
	}
	return c.sendForm(ctx, EndpointTrafficVolume, txID, form)
}

// ProjectedTraffic posts the projected demand step.
func (c *Coordinator) ProjectedTraffic(ctx context.Context, req ProjectedTrafficRequest) (Response, error) {
	if req.File == "" {
		return Response{}, fmt.Errorf("projected traffic file: %w", ErrMissingFiles)
	}
	txID := c.CurrentTransactionID(ctx)
	form := newForm()
	form.field("city_name", req.City)
	form.field("year", req.Year)
	form.field("transaction_id", txID)
	if err := form.file("file_csv", req.File); err != nil {
		return Response{}, err
	}
	if len(req.Table.Rows) > 0 {
		table, err := json.Marshal(req.Table.Records())
		if err != nil {
			return Response{}, fmt.Errorf("failed to encode projected table: %w", err)
		}
		form.field("file_table", string(table))
	}
	return c.sendForm(ctx, EndpointProjectedTraffic, txID, form)
}

// ProcessTraffic asks the backend to run speed estimation.
func (c *Coordinator) ProcessTraffic(ctx context.Context, req ProcessTrafficRequest) (Response, error) {
	if req.ParametersFile == "" {
		return Response{}, fmt.Errorf("MFD parameters file: %w", ErrMissingFiles)
	}
	txID := c.CurrentTransactionID(ctx)
	form := newForm()
	form.field("city_name", req.City)
	form.field("year", req.Year)
	if err := form.file("parameters_file", req.ParametersFile); err != nil {
		return Response{}, err
	}
	return c.sendForm(ctx, EndpointProcessTraffic, txID, form)
}

// FetchTrafficPlot downloads the speed estimation plot for city and year.
func (c *Coordinator) FetchTrafficPlot(ctx context.Context, city, year string) ([]byte, string, error) {
	endpoint := EndpointTrafficPlot + "/" + url.PathEscape(city) + "/" + url.PathEscape(year)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch traffic plot: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			// Best-effort body close.
			_ = cerr
		}
	}()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read traffic plot: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &HTTPError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *Coordinator) sendForm(ctx context.Context, endpoint, txID string, f *formBody) (Response, error) {
	contentType, body, err := f.finish()
	if err != nil {
		return Response{}, err
	}
	return c.send(ctx, endpoint, txID, contentType, body)
}

// formBody accumulates a multipart body. The first error sticks.
type formBody struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *formBody {
	f := &formBody{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *formBody) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *formBody) file(name, path string) error {
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		f.err = fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		return f.err
	}
	part, err := f.w.CreateFormFile(name, filepath.Base(path))
	if err != nil {
		f.err = err
		return err
	}
	if _, err := part.Write(data); err != nil {
		f.err = err
		return err
	}
	return nil
}

func (f *formBody) finish() (string, []byte, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	if err := f.w.Close(); err != nil {
		return "", nil, fmt.Errorf("failed to finish form: %w", err)
	}
	return f.w.FormDataContentType(), f.buf.Bytes(), nil
}

// PlotFileName returns the local file name for a downloaded traffic plot.
func PlotFileName(city, year, contentType string) string {
	ext := ".png"
	switch {
	case strings.Contains(contentType, "svg"):
		ext = ".svg"
	case strings.Contains(contentType, "jpeg"):
		ext = ".jpg"
	}
	return fmt.Sprintf("traffic_%s_%s%s", city, year, ext)
}
