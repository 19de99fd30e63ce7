package processing

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"framepipe/internal/models"

	"github.com/gorilla/websocket"
)

var ErrInference = errors.New("inference failed")

// RemoteDetector is a synchronous client for the detection server. One
// request is in flight at a time; a broken connection is dropped and redialed
// on the next call.
type RemoteDetector struct {
	serverURL string
	model     string
	version   string
	dialer    *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

func NewRemoteDetector(host, model, version string) *RemoteDetector {
	u := url.URL{Scheme: "ws", Host: host, Path: "/ws"}

	return &RemoteDetector{
		serverURL: u.String(),
		model:     model,
		version:   version,
		dialer:    websocket.DefaultDialer,
	}
}

// Detect sends img to the server and waits for its detections. The context
// deadline bounds the whole round trip.
func (d *RemoteDetector) Detect(ctx context.Context, img *image.RGBA) ([]models.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, err := d.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetWriteDeadline(deadline)
	conn.SetReadDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		conn.UnderlyingConn().SetDeadline(time.Now())
	})
	defer stop()

	d.nextID++
	bounds := img.Bounds()
	req := models.InferenceRequest{
		ID:       d.nextID,
		Model:    d.model,
		Version:  d.version,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Channels: 3,
	}

	if err := conn.WriteJSON(req); err != nil {
		return nil, d.drop(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, packRGB(img)); err != nil {
		return nil, d.drop(err)
	}

	var resp models.InferenceResponse
	if err := conn.ReadJSON(&resp); err != nil {
		return nil, d.drop(err)
	}
	if resp.ID != req.ID {
		return nil, d.drop(fmt.Errorf("response id %d, want %d", resp.ID, req.ID))
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: server: %s", ErrInference, resp.Error)
	}

	dets := make([]models.Detection, 0, len(resp.Detections))
	for _, w := range resp.Detections {
		det, err := w.Detection()
		if err != nil {
			slog.Warn("detector: skipping malformed detection", "error", err)
			continue
		}
		dets = append(dets, det)
	}
	return dets, nil
}

func (d *RemoteDetector) connect(ctx context.Context) (*websocket.Conn, error) {
	if d.conn != nil {
		return d.conn, nil
	}

	slog.Info("detector: connecting to detector server", "url", d.serverURL)
	conn, _, err := d.dialer.DialContext(ctx, d.serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.serverURL, err)
	}
	slog.Info("detector: connected to detection server", "url", d.serverURL)

	d.conn = conn
	return conn, nil
}

func (d *RemoteDetector) drop(err error) error {
	slog.Warn("detector: connection lost", "error", err)
	d.conn.Close()
	d.conn = nil
	return fmt.Errorf("%w: %w", ErrInference, err)
}

func (d *RemoteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.conn == nil {
		return nil
	}
	err := d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	d.conn.Close()
	d.conn = nil
	return err
}

// packRGB strips alpha into a tightly packed RGB byte slice.
func packRGB(img *image.RGBA) []byte {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w*4; x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}
