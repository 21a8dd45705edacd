package wizard

import (
	"context"
	"strings"

	"github.com/verte-zerg/emiwiz/internal/model"
	"github.com/verte-zerg/emiwiz/internal/resolve"
	"github.com/verte-zerg/emiwiz/internal/upload"
)

// Uploader is the backend surface the controller drives.
type Uploader interface {
	Classification(ctx context.Context, req upload.ClassificationRequest) (upload.Response, error)
	Penetration(ctx context.Context, req upload.PenetrationRequest) (upload.Response, error)
	TrafficVolume(ctx context.Context, req upload.TrafficVolumeRequest) (upload.Response, error)
	ProjectedTraffic(ctx context.Context, req upload.ProjectedTrafficRequest) (upload.Response, error)
	ProcessTraffic(ctx context.Context, req upload.ProcessTrafficRequest) (upload.Response, error)
	FetchTrafficPlot(ctx context.Context, city, year string) ([]byte, string, error)
}

type uploadCall func(ctx context.Context) (upload.Response, error)

// payloadCity is the canonical city key sent to the backend.
func payloadCity(s model.AppState) string {
	return resolve.CanonicalCity(strings.TrimSpace(s.CityKey()))
}

// inputUpload builds the upload for the current Input sub-step from a state copy.
// It returns nil when the sub-step has nothing to send.
func inputUpload(u Uploader, s model.AppState) uploadCall {
	if u == nil {
		return nil
	}
	city := payloadCity(s)
	switch s.InputSub {
	case 0:
		req := upload.ClassificationRequest{
			City:        city,
			BaseYear:    s.Classification.BaseYear,
			VehicleType: s.Classification.VehicleType,
			File:        s.Classification.File,
			Headers:     s.Classification.Headers,
			Rows:        s.Classification.AllRows,
		}
		return func(ctx context.Context) (upload.Response, error) { return u.Classification(ctx, req) }
	case 1:
		if s.Penetration.File == "" {
			return nil
		}
		req := upload.PenetrationRequest{
			City:          city,
			BaseYear:      s.Classification.BaseYear,
			VehicleType:   s.Classification.VehicleType,
			ProjectedYear: s.Penetration.ProjectedYear,
			File:          s.Penetration.File,
		}
		return func(ctx context.Context) (upload.Response, error) { return u.Penetration(ctx, req) }
	case 2:
		req := upload.TrafficVolumeRequest{
			City:       city,
			VolumeFile: s.TrafficVolume.VolumeFile,
			MFDFile:    s.TrafficVolume.MFDFile,
		}
		return func(ctx context.Context) (upload.Response, error) { return u.TrafficVolume(ctx, req) }
	case 3:
		if s.Projected.File == "" {
			return nil
		}
		req := upload.ProjectedTrafficRequest{
			City:  city,
			Year:  s.ProjectionYear(),
			File:  s.Projected.File,
			Table: s.Projected.Table,
		}
		return func(ctx context.Context) (upload.Response, error) { return u.ProjectedTraffic(ctx, req) }
	}
	return nil
}
