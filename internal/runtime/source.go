package runtime

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/technosupport/ts-vms/internal/data"
)

// NewFrameSource builds the FrameSource matching src's protocol (spec.md
// §4.3 CameraSource / §4.5). http and ip_webcam sources pull a real
// multipart/x-mixed-replace MJPEG stream and decode actual JPEG frames.
// rtsp, local, and usb sources have no pure-Go decoder anywhere in the
// examined stack (no gortsplib/ffmpeg binding is wired — see DESIGN.md),
// so they run against a synthetic test-pattern generator instead, the
// same documented trade-off Detector's SimulationDetector makes.
func NewFrameSource(src CameraSourceDescriptor) FrameSource {
	switch src.Protocol {
	case data.ProtocolHTTP, data.ProtocolIPWebcam:
		return &httpMJPEGSource{desc: src}
	default:
		return newPatternSource(src)
	}
}

// CameraSourceDescriptor is the subset of a camera row the runtime needs to
// open a stream, independent of the probe package's own descriptor so the
// runtime has no compile-time dependency on internal/probe.
type CameraSourceDescriptor struct {
	CameraID   string
	IPAddress  string
	Port       int
	Protocol   data.CameraProtocol
	StreamPath string
	AuthType   data.CameraAuthType
	Username   string
	Password   string
}

// httpMJPEGSource pulls a multipart/x-mixed-replace MJPEG stream and
// decodes each part as a JPEG frame, matching spec.md §4.9's "the data
// plane relays sampled frames, not a raw passthrough" framing: the source
// keeps one underlying HTTP connection open and ReadFrame blocks for the
// next part.
type httpMJPEGSource struct {
	desc   CameraSourceDescriptor
	client *http.Client
	resp   *http.Response
	reader *multipart.Reader
}

func (s *httpMJPEGSource) Open(ctx context.Context) error {
	port := s.desc.Port
	if port == 0 {
		port = 80
	}
	url := fmt.Sprintf("http://%s:%d%s", s.desc.IPAddress, port, s.desc.StreamPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	if s.desc.AuthType == data.AuthBasic && s.desc.Username != "" {
		req.SetBasicAuth(s.desc.Username, s.desc.Password)
	}

	s.client = &http.Client{}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("camera http source: unexpected status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return fmt.Errorf("camera http source: not a multipart stream (%q)", resp.Header.Get("Content-Type"))
	}

	s.resp = resp
	s.reader = multipart.NewReader(resp.Body, params["boundary"])
	return nil
}

func (s *httpMJPEGSource) ReadFrame(ctx context.Context) (image.Image, error) {
	if s.reader == nil {
		return nil, fmt.Errorf("camera http source: not open")
	}
	part, err := s.reader.NextPart()
	if err != nil {
		return nil, err
	}
	defer part.Close()
	return jpeg.Decode(part)
}

func (s *httpMJPEGSource) Close() error {
	if s.resp != nil {
		return s.resp.Body.Close()
	}
	return nil
}

// patternSource generates a deterministic moving test-pattern image in
// lieu of a real decoder (see NewFrameSource doc comment). It still
// respects protocol-specific dial semantics for rtsp so that an
// unreachable host fails Open the same way a real source would.
type patternSource struct {
	desc CameraSourceDescriptor
	mu   sync.Mutex
	tick int
}

func newPatternSource(desc CameraSourceDescriptor) *patternSource {
	return &patternSource{desc: desc}
}

func (s *patternSource) Open(ctx context.Context) error {
	if s.desc.Protocol == data.ProtocolLocal || s.desc.Protocol == data.ProtocolUSB {
		return nil
	}
	// rtsp and anything else: confirm the endpoint accepts a TCP dial
	// before handing out synthetic frames, so unreachable cameras still
	// surface as connect failures (spec.md §4.5 CONNECTING->FAILED).
	if s.desc.IPAddress == "" {
		return nil
	}
	port := s.desc.Port
	if port == 0 {
		port = 554
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(s.desc.IPAddress, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}

func (s *patternSource) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++

	const w, h = 320, 240
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	phase := float64(s.tick%w) / float64(w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(128 + 127*math.Sin(2*math.Pi*(float64(x)/float64(w)+phase)))
			img.Set(x, y, color.RGBA{R: v, G: v / 2, B: 255 - v, A: 255})
		}
	}
	return img, nil
}

func (s *patternSource) Close() error { return nil }
