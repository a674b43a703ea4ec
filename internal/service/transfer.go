package service

//
// transfer.go
// Copyright (C) 2025 Karol Będkowski <Karol Będkowski@kkomp>
//
// Distributed under terms of the GPLv3 license.
//

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"gitlab.com/kabes/go-cast/internal/aerr"
)

const progressMinInterval = time.Second

// transferClient download a url into a .part file. An existing .part file
// is continued with a Range request, so transfers survive process
// restarts; the finished file stays in place for the caller to move.
type transferClient struct {
	client *http.Client
}

func newTransferClient() *transferClient {
	return &transferClient{
		client: &http.Client{
			// no overall timeout; large episodes on slow links are legal.
			// stuck connections die via the context.
			Transport: &http.Transport{ResponseHeaderTimeout: 30 * time.Second}, //nolint:mnd
		},
	}
}

// Fetch download url into partfile, resuming when possible. The progress
// callback receives (received, total) bytes; total is -1 when unknown.
// The final update is always delivered.
func (t *transferClient) Fetch(ctx context.Context, url, partfile string,
	progress func(received, total int64),
) error {
	var offset int64
	if fi, err := os.Stat(partfile); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return aerr.ApplyFor(aerr.ErrTransfer, err, "invalid download url").WithMeta("url", url)
	}

	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return aerr.ApplyFor(aerr.ErrTransfer, err, "request failed").WithMeta("url", url)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY

	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND

	case http.StatusOK:
		// server ignored the Range header; start over
		offset = 0
		flags |= os.O_TRUNC

	default:
		return aerr.ErrTransfer.WithMsg("unexpected status %d", resp.StatusCode).
			WithMeta("url", url, "status", resp.StatusCode)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	out, err := os.OpenFile(partfile, flags, 0o644) //nolint:mnd
	if err != nil {
		return aerr.ApplyFor(aerr.ErrTransfer, err, "open part file failed").WithMeta("file", partfile)
	}

	reader := &progressReader{
		src:      resp.Body,
		received: offset,
		total:    total,
		callback: progress,
	}

	written, err := io.Copy(out, reader)
	metricDownloadedBytes.Add(float64(written))

	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("transfer cancelled: %w", err)
		}

		return aerr.ApplyFor(aerr.ErrTransfer, err, "transfer interrupted").WithMeta("url", url)
	}

	reader.flush()

	log.Ctx(ctx).Debug().Str("url", url).Int64("bytes", reader.received).Msg("transfer finished")

	return nil
}

// progressReader count received bytes and report them at most once per
// second; flush delivers the final count unconditionally.
type progressReader struct {
	src      io.Reader
	received int64
	total    int64
	callback func(received, total int64)
	lastCall time.Time
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.src.Read(buf)
	p.received += int64(n)

	if p.callback != nil && time.Since(p.lastCall) >= progressMinInterval {
		p.lastCall = time.Now()
		p.callback(p.received, p.total)
	}

	return n, err //nolint:wrapcheck
}

func (p *progressReader) flush() {
	if p.callback != nil {
		p.callback(p.received, p.received)
	}
}
