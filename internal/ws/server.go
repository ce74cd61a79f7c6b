package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/anamnesis/internal/audio"
	"github.com/obiente/anamnesis/internal/capture"
	"github.com/obiente/anamnesis/internal/metrics"
)

const (
	readTimeout     = 60 * time.Second
	maxMessageBytes = 8 << 20
)

// Options tunes capture sessions opened over the websocket.
type Options struct {
	SampleRate   int
	PollWait     time.Duration
	IdlePause    time.Duration
	BufferFrames int
}

// Server accepts websocket capture sessions and stores each finished
// recording under its session ID.
type Server struct {
	opts     Options
	store    *audio.Store
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
	active   atomic.Int64

	mu       sync.Mutex
	closing  bool
	conns    map[*websocket.Conn]struct{}
	handlers sync.WaitGroup
}

// NewServer returns a capture endpoint writing into store. m may be nil.
func NewServer(store *audio.Store, opts Options, m *metrics.Metrics) *Server {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	return &Server{
		opts:    opts,
		store:   store,
		metrics: m,
		conns:   make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
	}
}

// Active reports the number of sessions currently capturing.
func (s *Server) Active() int {
	return int(s.active.Load())
}

// Shutdown stops accepting capture connections, closes the open ones so
// their sessions are finished and saved, and waits for the handlers to
// return or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	for _, conn := range conns {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = conn.Close()
	}
	if len(conns) > 0 {
		log.Info().Int("connections", len(conns)).Msg("closing capture connections")
	}

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enter registers a handler unless the server is shutting down.
func (s *Server) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.handlers.Add(1)
	return true
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// session is one start..stop capture on a connection.
type session struct {
	id         string
	mime       string
	sampleRate int
	src        *capture.ChannelSource
	seq        uint64
	done       chan captureResult
}

type captureResult struct {
	rec *audio.Recording
	err error
}

// writer serializes writes to a connection.
type writer struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *writer) send(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(v); err != nil {
		log.Debug().Err(err).Msg("ws write failed")
	}
}

func (c *writer) sendError(detail string) {
	c.send(map[string]any{"type": "error", "detail": detail})
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	if !s.enter() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.handlers.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()
	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(readTimeout)); return nil })

	c := &writer{conn: conn}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess *session
	progress := make(chan int, 8)

	// Progress is advisory; only the latest count matters, so it is flushed
	// between reads rather than from the capture goroutine.
	drainProgress := func() {
		last := -1
		for {
			select {
			case n := <-progress:
				last = n
			default:
				if last >= 0 {
					c.send(map[string]any{"type": "progress", "frames": last})
				}
				return
			}
		}
	}

	for {
		drainProgress()

		mt, data, err := conn.ReadMessage()
		if err != nil {
			outcome := "disconnected"
			if s.shuttingDown() {
				outcome = "shutdown"
			} else if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Msg("ws read error")
			}
			if sess != nil {
				sess.src.Close()
				s.finish(sess, outcome)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if mt == websocket.BinaryMessage {
			if sess == nil {
				c.sendError("session not started")
				continue
			}
			pcm, err := s.toPCM(sess, data, "audio/pcm")
			if err == nil {
				err = s.push(ctx, sess, pcm)
			}
			if err != nil {
				c.sendError(err.Error())
			}
			continue
		}

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("invalid json")
			continue
		}
		switch msg["type"] {
		case "ping":
			c.send(map[string]any{"type": "pong", "ts": msg["ts"]})
		case "start":
			if sess != nil {
				c.sendError("session already started")
				continue
			}
			if v, _ := msg["mime_type"].(string); chunkKind(v) == kindUnknown {
				c.sendError(fmt.Sprintf("unsupported capture type %q", v))
				continue
			}
			sess = s.start(ctx, msg, progress)
			c.send(map[string]any{"type": "started", "session_id": sess.id})
		case "chunk":
			if sess == nil {
				c.sendError("session not started")
				continue
			}
			b64, _ := msg["data"].(string)
			if b64 == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				c.sendError("invalid base64 audio")
				continue
			}
			mime := sess.mime
			if v, ok := msg["mime_type"].(string); ok && v != "" {
				mime = v
			}
			pcm, err := s.toPCM(sess, raw, mime)
			if err != nil {
				log.Warn().Err(err).Str("session", sess.id).Msg("audio decode failed")
				c.sendError("decode audio failed")
				continue
			}
			if err := s.push(ctx, sess, pcm); err != nil {
				c.sendError(err.Error())
			}
		case "stop":
			if sess == nil {
				c.sendError("session not started")
				continue
			}
			sess.src.Stop()
			asset, rec, err := s.finish(sess, "stopped")
			drainProgress()
			if err != nil {
				c.sendError("save recording failed")
			} else {
				c.send(map[string]any{
					"type":        "stopped",
					"session_id":  sess.id,
					"frames":      rec.Len(),
					"bytes":       rec.Bytes(),
					"duration_ms": rec.Duration(s.opts.SampleRate).Milliseconds(),
					"mime_type":   asset.MIME,
				})
			}
			sess = nil
		default:
			c.sendError("unknown message type")
		}
	}
}

func (s *Server) start(ctx context.Context, msg map[string]any, progress chan<- int) *session {
	sess := &session{
		id:         uuid.NewString(),
		mime:       "audio/pcm",
		sampleRate: s.opts.SampleRate,
		src:        capture.NewChannelSource(s.opts.BufferFrames),
		done:       make(chan captureResult, 1),
	}
	if v, ok := msg["mime_type"].(string); ok && v != "" {
		sess.mime = v
	}
	if sr := int(asFloat(msg["sample_rate"])); sr > 0 {
		sess.sampleRate = sr
	}

	capturer := capture.New(s.opts.PollWait, s.opts.IdlePause)
	sink := capture.ProgressFunc(func(n int) {
		select {
		case progress <- n:
		default:
		}
	})
	go func() {
		rec, err := capturer.Run(ctx, sess.src, sink)
		sess.done <- captureResult{rec: rec, err: err}
	}()

	s.active.Add(1)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Inc()
	}
	log.Info().
		Str("session", sess.id).
		Str("mime", sess.mime).
		Int("sample_rate", sess.sampleRate).
		Msg("capture session started")
	return sess
}

// toPCM normalizes a chunk to PCM16LE at the server's sample rate, which is
// the rate the store writes into WAV headers. PCM chunks are taken to be at
// the rate declared in start.
func (s *Server) toPCM(sess *session, raw []byte, mime string) ([]byte, error) {
	var (
		samples []float32
		sr      int
		err     error
	)
	switch chunkKind(mime) {
	case kindPCM:
		if sess.sampleRate == s.opts.SampleRate {
			if len(raw)%2 != 0 {
				return nil, errors.New("pcm16 length must be even")
			}
			return raw, nil
		}
		samples, sr, err = audio.DecodePCM16LEToFloat32(raw, sess.sampleRate)
	case kindWAV:
		pcm, rate, werr := audio.DecodeWAVToPCM16(raw)
		if werr != nil {
			return nil, werr
		}
		if rate == s.opts.SampleRate {
			return pcm, nil
		}
		samples, sr, err = audio.DecodePCM16LEToFloat32(pcm, rate)
	default:
		return nil, fmt.Errorf("unsupported chunk type %q", mime)
	}
	if err != nil {
		return nil, err
	}
	if sr != s.opts.SampleRate {
		samples = audio.ResampleLinear(samples, sr, s.opts.SampleRate)
	}
	return audio.EncodeFloat32ToPCM16LE(samples), nil
}

func (s *Server) push(ctx context.Context, sess *session, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	if len(pcm)%2 != 0 {
		return errors.New("pcm16 length must be even")
	}
	sess.seq++
	if !sess.src.Push(ctx, audio.Frame{Seq: sess.seq, At: time.Now(), Data: pcm}) {
		return errors.New("session closed")
	}
	return nil
}

// finish waits for the capture loop, then assembles and stores the recording.
func (s *Server) finish(sess *session, outcome string) (audio.Asset, *audio.Recording, error) {
	res := <-sess.done
	sess.src.Close()
	s.active.Add(-1)

	rec := res.rec
	if res.err != nil {
		log.Warn().Err(res.err).Str("session", sess.id).Msg("capture ended with error")
	}

	pcm := audio.Assemble(rec)
	asset, err := s.store.Save(sess.id, pcm)
	if err != nil {
		outcome = "failed"
		log.Error().Err(err).Str("session", sess.id).Msg("save recording failed")
	}

	if s.metrics != nil {
		s.metrics.ActiveSessions.Dec()
		s.metrics.SessionsTotal.WithLabelValues(outcome).Inc()
		s.metrics.FramesCaptured.Add(float64(rec.Len()))
		if err == nil {
			s.metrics.RecordingsSaved.Inc()
			s.metrics.RecordingBytes.Observe(float64(len(pcm)))
		}
	}
	log.Info().
		Str("session", sess.id).
		Str("outcome", outcome).
		Int("frames", rec.Len()).
		Int("bytes", rec.Bytes()).
		Msg("capture session finished")
	return asset, rec, err
}

const (
	kindUnknown = iota
	kindPCM
	kindWAV
)

func chunkKind(mime string) int {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "", "audio/pcm", "audio/pcm16", "audio/l16":
		return kindPCM
	case "audio/wav", "audio/x-wav", "audio/wave":
		return kindWAV
	}
	return kindUnknown
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	default:
		return 0
	}
}
