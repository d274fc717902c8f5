package stream

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// openInput dials rawURL and returns a reader of raw transport-stream bytes.
// The returned closer must be closed by the caller once done. Scheme
// dispatch: http(s) pulls a GET body, udp/rtp listens for datagrams on the
// given local port, srt dials out via input_srt.go.
func openInput(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errUnsupportedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return openHTTPInput(ctx, rawURL)
	case "udp":
		return openUDPInput(ctx, u)
	case "rtp":
		return openRTPInput(ctx, u)
	case "srt":
		return openSRTInput(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%w: scheme %q", errUnsupportedURL, u.Scheme)
	}
}

func openHTTPInput(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("stream: build HTTP request: %w", err)
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream: HTTP dial: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("stream: HTTP status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// udpConnReader adapts a *net.UDPConn into an io.ReadCloser that strips
// nothing — UDP MPEG-TS payloads are usually whole TS packets concatenated
// per datagram (188*N bytes, commonly N=7).
type udpConnReader struct {
	conn *net.UDPConn
}

func (r *udpConnReader) Read(p []byte) (int, error) {
	n, _, err := r.conn.ReadFromUDP(p)
	return n, err
}

func (r *udpConnReader) Close() error {
	return r.conn.Close()
}

func openUDPInput(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("stream: resolve UDP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: listen UDP: %w", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return &udpConnReader{conn: conn}, nil
}

// rtpReader strips the fixed 12-byte RTP header from each datagram before
// handing the remainder (assumed MPEG-TS payload) to the caller.
type rtpReader struct {
	conn *net.UDPConn
	buf  []byte
}

func (r *rtpReader) Read(p []byte) (int, error) {
	if r.buf == nil {
		r.buf = make([]byte, 64*1024)
	}
	n, _, err := r.conn.ReadFromUDP(r.buf)
	if err != nil {
		return 0, err
	}
	if n <= 12 {
		return 0, nil
	}
	payload := r.buf[12:n]
	copied := copy(p, payload)
	return copied, nil
}

func (r *rtpReader) Close() error {
	return r.conn.Close()
}

func openRTPInput(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("stream: resolve RTP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("stream: listen RTP: %w", err)
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	return &rtpReader{conn: conn}, nil
}

// dialTimeout bounds how long openSRTInput waits for its dial before giving
// up. The http, udp and rtp paths do not use it.
const dialTimeout = 10 * time.Second
