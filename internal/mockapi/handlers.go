package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/tabular"
)

type classificationBody struct {
	City        string      `json:"city"`
	BaseYear    string      `json:"base_year"`
	VehicleType string      `json:"vehicle_type"`
	Data        []model.Row `json:"classification_table_data"`
	Headers     model.Row   `json:"classification_table_headers"`
	Transaction string      `json:"transaction_id"`
}

// handleClassification accepts either a multipart file or the parsed table as JSON.
// POST /upload/vehicle_classification
func (s *Server) handleClassification(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		var body classificationBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}
		if body.City == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "city is required"})
			return
		}
		txID := issueTransaction(body.Transaction)
		s.record(Upload{
			Endpoint:      c.FullPath(),
			TransactionID: txID,
			City:          body.City,
			Fields:        map[string]string{"base_year": body.BaseYear, "vehicle_type": body.VehicleType},
			Files:         map[string]int{"classification_table_data": len(body.Data)},
		})
		c.JSON(http.StatusOK, gin.H{"message": "classification data received", "rows": len(body.Data), "transaction_id": txID})
		return
	}

	table, ok, err := readTable(c, "file")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	city := c.PostForm("main_city")
	if city == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "main_city is required"})
		return
	}
	txID := issueTransaction(c.PostForm("transaction_id"))
	s.record(Upload{
		Endpoint:      c.FullPath(),
		TransactionID: txID,
		City:          city,
		Fields:        formFields(c, "year", "user_id"),
		Files:         map[string]int{"file": len(table.Rows)},
	})
	c.JSON(http.StatusOK, gin.H{"message": "classification file received", "rows": len(table.Rows), "transaction_id": txID})
}

// handlePenetration accepts the projected penetration rate file.
// POST /upload/penetration_rate
func (s *Server) handlePenetration(c *gin.Context) {
	table, ok, err := readTable(c, "file")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	txID := issueTransaction(c.PostForm("transaction_id"))
	s.record(Upload{
		Endpoint:      c.FullPath(),
		TransactionID: txID,
		City:          c.PostForm("city"),
		Fields:        formFields(c, "base_year", "vehicle_type", "projected_year", "user_id"),
		Files:         map[string]int{"file": len(table.Rows)},
	})
	c.JSON(http.StatusOK, gin.H{"message": "penetration rate received", "rows": len(table.Rows), "transaction_id": txID})
}

// handleTrafficVolume accepts the traffic volume and MFD parameter files.
// POST /upload/traffic_volume
func (s *Server) handleTrafficVolume(c *gin.Context) {
	volume, volumeOK, err := readTable(c, "file1")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mfd, mfdOK, err := readTable(c, "file2")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !volumeOK || !mfdOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": "both traffic volume and MFD parameter files are required"})
		return
	}
	city := c.PostForm("city_name")
	if city == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city_name is required"})
		return
	}
	txID := issueTransaction(c.PostForm("transaction_id"))
	s.record(Upload{
		Endpoint:      c.FullPath(),
		TransactionID: txID,
		City:          city,
		Fields:        map[string]string{},
		Files:         map[string]int{"file1": len(volume.Rows), "file2": len(mfd.Rows)},
	})
	c.JSON(http.StatusOK, gin.H{"message": "traffic volume received", "transaction_id": txID})
}

// handleProjectedTraffic accepts the projected demand file and its table.
// POST /upload/projected_traffic
func (s *Server) handleProjectedTraffic(c *gin.Context) {
	demand, ok, err := readTable(c, "file_csv")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_csv is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records := 0
	if raw := c.PostForm("file_table"); raw != "" {
		var table []map[string]any
		if err := json.Unmarshal([]byte(raw), &table); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file_table must be a JSON array of records"})
			return
		}
		records = len(table)
	}
	txID := issueTransaction(c.PostForm("transaction_id"))
	s.record(Upload{
		Endpoint:      c.FullPath(),
		TransactionID: txID,
		City:          c.PostForm("city_name"),
		Fields:        formFields(c, "year"),
		Files:         map[string]int{"file_csv": len(demand.Rows), "file_table": records},
	})
	c.JSON(http.StatusOK, gin.H{"message": "projected traffic received", "transaction_id": txID})
}

// handleProcessTraffic runs the stand-in speed estimation.
// POST /process/traffic
func (s *Server) handleProcessTraffic(c *gin.Context) {
	params, ok, err := readTable(c, "parameters_file")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parameters_file is required"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	city, year := c.PostForm("city_name"), c.PostForm("year")
	if city == "" || year == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city_name and year are required"})
		return
	}
	s.mu.Lock()
	s.plots[plotKey(city, year)] = params
	s.mu.Unlock()
	s.record(Upload{
		Endpoint: c.FullPath(),
		City:     city,
		Fields:   map[string]string{"year": year},
		Files:    map[string]int{"parameters_file": len(params.Rows)},
	})
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("speed estimated for %d tracts", len(params.Rows))})
}

// handleTrafficPlot returns the speed plot once processing ran for city and year.
// GET /plot/traffic/:city/:year
func (s *Server) handleTrafficPlot(c *gin.Context) {
	city, year := c.Param("city"), c.Param("year")
	s.mu.Lock()
	params, ready := s.plots[plotKey(city, year)]
	s.mu.Unlock()
	if !ready {
		c.JSON(http.StatusNotFound, gin.H{"error": "no plot for " + city + " " + year})
		return
	}
	data, err := renderSpeedPlot(city, year, params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", data)
}

// readTable parses the uploaded file in field. ok is false when the field is absent.
func readTable(c *gin.Context, field string) (table model.Table, ok bool, err error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return model.Table{}, false, nil
	}
	f, err := fh.Open()
	if err != nil {
		return model.Table{}, true, fmt.Errorf("failed to open %s: %w", field, err)
	}
	defer func() {
		_ = f.Close()
	}()
	table, err = tabular.Load(fh.Filename, f)
	if err != nil {
		return model.Table{}, true, err
	}
	return table, true, nil
}

func formFields(c *gin.Context, names ...string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = c.PostForm(name)
	}
	return out
}

func issueTransaction(incoming string) string {
	if isDefaultTransaction(incoming) {
		return uuid.NewString()
	}
	return incoming
}
