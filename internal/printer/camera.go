package printer

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
)

// CaptureFrame fetches one camera frame over the HTTP channel. The frame
// lives at a fixed path and needs no token; the bytes come back raw with a
// base64 rendering alongside for callers that embed the frame in JSON.
func (s *Session) CaptureFrame(ctx context.Context) (*Frame, error) {
	endpoint := fmt.Sprintf("http://%s%s", s.authority.host, CameraPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build camera request: %v", ErrConnect, err)
	}

	resp, err := s.authority.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: camera channel: %v", ErrConnect, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: camera returned status %d", ErrConnect, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read camera frame: %v", ErrProtocol, err)
	}

	return &Frame{
		Bytes:  raw,
		Base64: base64.StdEncoding.EncodeToString(raw),
	}, nil
}
