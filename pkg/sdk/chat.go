package finrag

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
	// single SSE line limit; sources events carry every citation
	maxEventSize = 1 << 20
)

// EventKind distinguishes stream events.
type EventKind int

// Stream event kinds.
const (
	EventToken EventKind = iota + 1
	EventSources
)

// Event is one element of a streamed answer: a text fragment or the final citations.
type Event struct {
	Kind    EventKind
	Token   string
	Sources []Citation
}

type chatRequest struct {
	Message string `json:"message"`
	History []Turn `json:"history"`
}

type chatResponse struct {
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
}

// Chat asks a question and waits for the complete answer.
func (c *Client) Chat(ctx context.Context, message string, history []Turn) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("chat", start, err) }()

	var out chatResponse
	q := url.Values{"stream": {"false"}}
	if err = c.doJSON(ctx, http.MethodPost, apiPrefix+"/chat", q, newChatRequest(message, history), &out); err != nil {
		return Answer{}, err
	}
	return Answer{Text: out.Answer, Citations: out.Citations}, nil
}

// ChatStream asks a question and streams the answer. The caller must Close the stream.
func (c *Client) ChatStream(ctx context.Context, message string, history []Turn) (st *Stream, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			c.obs.observe("chat_stream", start, err)
		}
	}()

	b, err := json.Marshal(newChatRequest(message, history))
	if err != nil {
		return nil, fmt.Errorf("finrag: encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, apiPrefix+"/chat", nil, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}

	st = &Stream{body: resp.Body, obs: c.obs, start: start}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		// сервер отвечает JSON, когда отвечать не по чему
		defer func() { _ = resp.Body.Close() }()
		var out chatResponse
		if err = decodeJSON(resp.Body, &out); err != nil {
			return nil, err
		}
		st.pending = []Event{
			{Kind: EventToken, Token: out.Answer},
			{Kind: EventSources, Sources: out.Citations},
		}
		st.done = true
		return st, nil
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	st.scanner = sc
	return st, nil
}

func newChatRequest(message string, history []Turn) chatRequest {
	if history == nil {
		history = []Turn{}
	}
	return chatRequest{Message: message, History: history}
}

// Stream reads a streamed answer. It is not safe for concurrent use.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	pending []Event
	done    bool

	cur   Event
	err   error
	obs   *observer
	start time.Time
	ended bool
}

// Next advances to the next event. It returns false at the end of the stream or on error.
func (s *Stream) Next() bool {
	if len(s.pending) > 0 {
		s.cur, s.pending = s.pending[0], s.pending[1:]
		return true
	}
	if s.done || s.err != nil {
		s.finish()
		return false
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if data == sseDone {
			s.done = true
			s.finish()
			return false
		}
		ev, ok, err := parseEvent(data)
		if err != nil {
			s.err = err
			s.finish()
			return false
		}
		if ok {
			s.cur = ev
			return true
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("finrag: read stream: %w", err)
	} else {
		s.err = io.ErrUnexpectedEOF
	}
	s.finish()
	return false
}

// Event returns the current event.
func (s *Stream) Event() Event { return s.cur }

// Err returns the error that stopped the stream, if any.
func (s *Stream) Err() error { return s.err }

// Close releases the connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.done = true
	s.finish()
	if s.body == nil {
		return nil
	}
	err := s.body.Close()
	s.body = nil
	return err
}

// Collect drains the stream into a buffered Answer.
func (s *Stream) Collect() (Answer, error) {
	var (
		sb  strings.Builder
		ans Answer
	)
	for s.Next() {
		ev := s.Event()
		switch ev.Kind {
		case EventToken:
			sb.WriteString(ev.Token)
		case EventSources:
			ans.Citations = ev.Sources
		}
	}
	ans.Text = sb.String()
	return ans, s.Err()
}

func (s *Stream) finish() {
	if s.ended {
		return
	}
	s.ended = true
	s.obs.observe("chat_stream", s.start, s.err)
}

// parseEvent decodes one data payload. Unknown payloads are skipped.
func parseEvent(data string) (Event, bool, error) {
	var raw struct {
		Token   *string    `json:"token"`
		Sources []Citation `json:"sources"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return Event{}, false, fmt.Errorf("finrag: decode stream event: %w", err)
	}
	switch {
	case raw.Token != nil:
		return Event{Kind: EventToken, Token: *raw.Token}, true, nil
	case raw.Sources != nil:
		return Event{Kind: EventSources, Sources: raw.Sources}, true, nil
	default:
		return Event{}, false, nil
	}
}

// IsStreamTruncated reports whether the stream ended without its terminator.
func IsStreamTruncated(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}
