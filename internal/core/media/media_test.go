package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wrauf/arlo/internal/core/auth"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCloud records the queried date window and answers with canned data.
type fakeCloud struct {
	dateFrom string
	dateTo   string
	env      auth.Envelope
	err      error
}

func (f *fakeCloud) QueryLibrary(_ context.Context, dateFrom, dateTo string) (auth.Envelope, error) {
	f.dateFrom = dateFrom
	f.dateTo = dateTo
	return f.env, f.err
}

const libraryJSON = `[
	{
		"name": "1700000300",
		"deviceId": "48B14C1299999",
		"localCreatedDate": 1700000300000,
		"contentType": "video/mp4",
		"mediaDurationSecond": 12,
		"reason": "motionRecord",
		"presignedThumbnailUrl": "https://cdn.example/3.jpg",
		"presignedContentUrl": "https://cdn.example/3.mp4",
		"objCategory": "animal"
	},
	{
		"name": "1700000200",
		"deviceId": "48B14CAAAAAAA",
		"localCreatedDate": 1700000200000,
		"contentType": "video/mp4",
		"mediaDurationSecond": 30,
		"reason": "audioRecord"
	},
	{
		"name": "1700000100",
		"deviceId": "48B14C1299999",
		"localCreatedDate": 1700000100000,
		"contentType": "video/mp4",
		"mediaDurationSecond": 7,
		"reason": "motionRecord"
	}
]`

func successEnv(data string) auth.Envelope {
	return auth.Envelope{Success: true, Data: json.RawMessage(data)}
}

func TestLoadDecodesRecordings(t *testing.T) {
	cloud := &fakeCloud{env: successEnv(libraryJSON)}
	l := NewLibrary(cloud, discardLogger())

	videos, err := l.Load(context.Background(), LoadOptions{Days: 7})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(videos) != 3 {
		t.Fatalf("got %d videos, want 3", len(videos))
	}

	first := videos[0]
	if first.Name != "1700000300" {
		t.Errorf("Name = %q, want 1700000300", first.Name)
	}
	if first.Reason != "motionRecord" {
		t.Errorf("Reason = %q, want motionRecord", first.Reason)
	}
	if first.MediaDurationSecond != 12 {
		t.Errorf("MediaDurationSecond = %d, want 12", first.MediaDurationSecond)
	}
	if first.MotionCategory != "animal" {
		t.Errorf("MotionCategory = %q, want animal", first.MotionCategory)
	}
	if got := first.CreatedTime(); !got.Equal(time.UnixMilli(1700000300000)) {
		t.Errorf("CreatedTime = %v, want %v", got, time.UnixMilli(1700000300000))
	}
}

func TestLoadDateWindow(t *testing.T) {
	t.Run("explicit range wins", func(t *testing.T) {
		cloud := &fakeCloud{env: successEnv(`[]`)}
		l := NewLibrary(cloud, discardLogger())

		_, err := l.Load(context.Background(), LoadOptions{DateFrom: "20260801", DateTo: "20260826"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cloud.dateFrom != "20260801" || cloud.dateTo != "20260826" {
			t.Errorf("window = %s..%s, want 20260801..20260826", cloud.dateFrom, cloud.dateTo)
		}
	})

	t.Run("days derive the range", func(t *testing.T) {
		cloud := &fakeCloud{env: successEnv(`[]`)}
		l := NewLibrary(cloud, discardLogger())

		if _, err := l.Load(context.Background(), LoadOptions{Days: 7}); err != nil {
			t.Fatalf("Load: %v", err)
		}
		now := time.Now()
		if want := now.AddDate(0, 0, -7).Format("20060102"); cloud.dateFrom != want {
			t.Errorf("dateFrom = %s, want %s", cloud.dateFrom, want)
		}
		if want := now.Format("20060102"); cloud.dateTo != want {
			t.Errorf("dateTo = %s, want %s", cloud.dateTo, want)
		}
	})
}

func TestLoadFiltersAndLimits(t *testing.T) {
	cloud := &fakeCloud{env: successEnv(libraryJSON)}
	l := NewLibrary(cloud, discardLogger())
	ctx := context.Background()

	videos, err := l.Load(ctx, LoadOptions{Days: 7, CameraIDs: []string{"48B14C1299999"}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(videos) != 2 {
		t.Fatalf("got %d videos for one camera, want 2", len(videos))
	}
	for _, v := range videos {
		if v.DeviceID != "48B14C1299999" {
			t.Errorf("unexpected device %s in filtered load", v.DeviceID)
		}
	}

	videos, err = l.Load(ctx, LoadOptions{Days: 7, Limit: 1})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(videos) != 1 {
		t.Errorf("got %d videos with limit 1, want 1", len(videos))
	}
}

func TestLoadCloudFailure(t *testing.T) {
	cloud := &fakeCloud{env: auth.Envelope{Success: false}}
	l := NewLibrary(cloud, discardLogger())

	if _, err := l.Load(context.Background(), LoadOptions{}); err == nil {
		t.Fatal("Load succeeded, want error")
	}
}

func TestCreatedToday(t *testing.T) {
	today := Video{CreatedDateMS: time.Now().UnixMilli()}
	if !today.CreatedToday() {
		t.Error("CreatedToday = false for a recording made now")
	}

	yesterday := Video{CreatedDateMS: time.Now().AddDate(0, 0, -1).UnixMilli()}
	if yesterday.CreatedToday() {
		t.Error("CreatedToday = true for yesterday's recording")
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "jpeg-bytes")
	}))
	t.Cleanup(srv.Close)

	l := NewLibrary(&fakeCloud{}, discardLogger())
	v := Video{ThumbnailURL: srv.URL + "/thumb.jpg"}

	var buf bytes.Buffer
	if err := l.DownloadThumbnail(context.Background(), v, &buf); err != nil {
		t.Fatalf("DownloadThumbnail: %v", err)
	}
	if buf.String() != "jpeg-bytes" {
		t.Errorf("downloaded %q, want jpeg-bytes", buf.String())
	}

	if err := l.DownloadVideo(context.Background(), Video{}, io.Discard); err == nil {
		t.Error("DownloadVideo with no URL succeeded, want error")
	}
}
