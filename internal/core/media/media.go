// Package media reads the cloud recording library: motion and audio clips
// the cameras uploaded, addressed by presigned URLs that expire.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/wrauf/arlo/internal/core/auth"
)

// DefaultPreloadDays is the lookback window used when a load gives no range.
const DefaultPreloadDays = 30

// Cloud is the slice of the session the library queries through.
type Cloud interface {
	QueryLibrary(ctx context.Context, dateFrom, dateTo string) (auth.Envelope, error)
}

// Video is one recording in the cloud library.
type Video struct {
	// Name is the cloud-assigned recording id.
	Name     string `json:"name"`
	DeviceID string `json:"deviceId"`
	// CreatedDateMS is the local creation time in milliseconds since the
	// epoch.
	CreatedDateMS       int64  `json:"localCreatedDate"`
	ContentType         string `json:"contentType"`
	MediaDurationSecond int    `json:"mediaDurationSecond"`
	// Reason is what triggered the recording, e.g. "motionRecord".
	Reason       string `json:"reason"`
	ThumbnailURL string `json:"presignedThumbnailUrl"`
	ContentURL   string `json:"presignedContentUrl"`
	// MotionCategory is the detected object class, subscription accounts
	// only.
	MotionCategory string `json:"objCategory"`
}

// CreatedTime returns the recording's creation time.
func (v Video) CreatedTime() time.Time {
	return time.UnixMilli(v.CreatedDateMS)
}

// CreatedToday reports whether the recording was made today, local time.
func (v Video) CreatedToday() bool {
	y1, m1, d1 := v.CreatedTime().Date()
	y2, m2, d2 := time.Now().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// LoadOptions narrow a library query. The zero value loads the default
// lookback window for all cameras.
type LoadOptions struct {
	// Days is the lookback window; ignored when DateFrom and DateTo are
	// both set.
	Days int
	// DateFrom and DateTo bound the query, yyyymmdd.
	DateFrom string
	DateTo   string
	// CameraIDs keeps only recordings from the listed devices.
	CameraIDs []string
	// Limit caps the number of returned recordings, newest first.
	Limit int
}

// Library queries and downloads cloud recordings.
type Library struct {
	cloud Cloud
	httpc *http.Client
	log   *slog.Logger
}

// NewLibrary creates a library over an authenticated session.
func NewLibrary(cloud Cloud, log *slog.Logger) *Library {
	return &Library{
		cloud: cloud,
		httpc: &http.Client{Timeout: 60 * time.Second},
		log:   log,
	}
}

// Load fetches the recordings matching opts, newest first as the cloud
// returns them.
func (l *Library) Load(ctx context.Context, opts LoadOptions) ([]Video, error) {
	dateFrom, dateTo := opts.DateFrom, opts.DateTo
	if dateFrom == "" || dateTo == "" {
		days := opts.Days
		if days <= 0 {
			days = DefaultPreloadDays
		}
		now := time.Now()
		dateFrom = now.AddDate(0, 0, -days).Format("20060102")
		dateTo = now.Format("20060102")
	}

	env, err := l.cloud.QueryLibrary(ctx, dateFrom, dateTo)
	if err != nil {
		return nil, fmt.Errorf("media: load: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("media: load: cloud reported failure")
	}

	var videos []Video
	if err := json.Unmarshal(env.Data, &videos); err != nil {
		return nil, fmt.Errorf("media: load: decode: %w", err)
	}

	if len(opts.CameraIDs) > 0 {
		wanted := make(map[string]bool, len(opts.CameraIDs))
		for _, id := range opts.CameraIDs {
			wanted[id] = true
		}
		filtered := videos[:0]
		for _, v := range videos {
			if wanted[v.DeviceID] {
				filtered = append(filtered, v)
			}
		}
		videos = filtered
	}

	if opts.Limit > 0 && len(videos) > opts.Limit {
		videos = videos[:opts.Limit]
	}

	l.log.Debug("library loaded", "from", dateFrom, "to", dateTo, "recordings", len(videos))
	return videos, nil
}

// DownloadThumbnail streams the recording's JPEG thumbnail into w.
func (l *Library) DownloadThumbnail(ctx context.Context, v Video, w io.Writer) error {
	return l.download(ctx, v.ThumbnailURL, w)
}

// DownloadVideo streams the recording's content into w.
func (l *Library) DownloadVideo(ctx context.Context, v Video, w io.Writer) error {
	return l.download(ctx, v.ContentURL, w)
}

// download fetches a presigned URL; no session headers, the URL carries its
// own authorization.
func (l *Library) download(ctx context.Context, url string, w io.Writer) error {
	if url == "" {
		return fmt.Errorf("media: download: no URL")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("media: download: %w", err)
	}
	resp, err := l.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("media: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("media: download: HTTP %d", resp.StatusCode)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("media: download: %w", err)
	}
	return nil
}
