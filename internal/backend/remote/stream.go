package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ceskapp/directory/internal/backend"
	"github.com/ceskapp/directory/internal/domain"
	domainerrors "github.com/ceskapp/directory/internal/errors"
)

const (
	eventConnected = "connected"
	eventChanged   = "resource.changed"
	eventHeartbeat = "heartbeat"
)

// SubscribeChanges opens the server's SSE change feed for one resource.
//
// The first connection is made before returning, so a server that cannot be reached
// fails the call. Afterwards the stream reconnects with backoff and delivers an
// OpResync change once it is back, since changes may have been missed while down.
func (c *Client) SubscribeChanges(ctx context.Context, resource domain.Resource, mask domain.OpMask) (backend.Subscription, error) {
	if mask == 0 {
		mask = domain.OpAll
	}

	sctx, cancel := context.WithCancel(ctx)
	resp, err := c.openStream(sctx, resource)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &stream{
		client:   c,
		resource: resource,
		mask:     mask,
		changes:  make(chan domain.Change, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   c.logger.With(slog.String("resource", string(resource))),
	}
	go s.run(sctx, resp)
	return s, nil
}

func (c *Client) openStream(ctx context.Context, resource domain.Resource) (*http.Response, error) {
	params := url.Values{}
	params.Set("resource", string(resource))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/changes", params), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req, nil)

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domainerrors.Transient("change stream unreachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

type stream struct {
	client   *Client
	resource domain.Resource
	mask     domain.OpMask
	changes  chan domain.Change
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

func (s *stream) Changes() <-chan domain.Change { return s.changes }

func (s *stream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (s *stream) run(ctx context.Context, resp *http.Response) {
	defer close(s.done)
	defer close(s.changes)

	for {
		err := readEvents(resp.Body, s.handle)
		_ = resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("change stream interrupted", slog.Any("error", err))

		resp = s.reconnect(ctx)
		if resp == nil {
			return
		}
		s.logger.Info("change stream reconnected")
		s.deliver(domain.Change{Resource: s.resource, Op: domain.OpResync})
	}
}

// reconnect retries with exponential backoff until it succeeds or ctx ends.
func (s *stream) reconnect(ctx context.Context) *http.Response {
	delay := s.client.reconnectMin
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		resp, err := s.client.openStream(ctx, s.resource)
		if err == nil {
			return resp
		}
		if ctx.Err() != nil {
			return nil
		}
		s.logger.Debug("change stream reconnect failed",
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))
		delay = min(delay*2, s.client.reconnectMax)
	}
}

func (s *stream) handle(event string, data []byte) error {
	switch event {
	case eventChanged:
		var change domain.Change
		if err := json.Unmarshal(data, &change); err != nil {
			s.logger.Warn("malformed change event", slog.String("error", err.Error()))
			return nil
		}
		if change.Resource != s.resource || !s.mask.Has(change.Op) {
			return nil
		}
		s.deliver(change)
	case eventConnected, eventHeartbeat:
	default:
		s.logger.Debug("ignoring unknown event", slog.String("event", event))
	}
	return nil
}

// deliver never blocks. Changes carry no diff, so a full buffer already guarantees the
// reader will refetch and the notification can be dropped.
func (s *stream) deliver(change domain.Change) {
	select {
	case s.changes <- change:
	default:
		s.logger.Debug("change buffer full, dropping notification", slog.String("op", string(change.Op)))
	}
}

// readEvents parses an SSE byte stream and calls fn once per dispatched event.
// Only the event and data fields are used; comments and ids are skipped.
func readEvents(r io.Reader, fn func(event string, data []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var (
		event string
		data  bytes.Buffer
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if data.Len() > 0 || event != "" {
				if event == "" {
					event = "message"
				}
				if err := fn(event, data.Bytes()); err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}
