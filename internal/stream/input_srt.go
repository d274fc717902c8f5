package stream

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	srtgo "github.com/zsiec/srtgo"
)

// srtConnReader adapts an *srtgo.Conn into an io.ReadCloser.
type srtConnReader struct {
	conn *srtgo.Conn
}

func (r *srtConnReader) Read(p []byte) (int, error) {
	return r.conn.Read(p)
}

func (r *srtConnReader) Close() error {
	return r.conn.Close()
}

// openSRTInput dials an SRT source (this repo always pulls — there is no
// listener side, unlike the teacher's Caller which also accepts pushed
// connections) with a bounded timeout, adapted from ingest/srt/caller.go's
// Pull/startStreaming dial discipline.
func openSRTInput(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("stream: parse SRT URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: SRT URL missing host", errUnsupportedURL)
	}

	cfg := srtgo.DefaultConfig()
	if sid := u.Query().Get("streamid"); sid != "" {
		cfg.StreamID = sid
	} else {
		cfg.StreamID = "tsmonitor/" + strings.TrimPrefix(u.Path, "/")
	}

	type dialResult struct {
		conn *srtgo.Conn
		err  error
	}
	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(u.Host, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("stream: SRT dial failed: %w", res.err)
		}
		return &srtConnReader{conn: res.conn}, nil
	case <-timer.C:
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, fmt.Errorf("stream: SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
