package web

import (
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/tonelink/pkg/batch"
	"github.com/teslashibe/tonelink/pkg/codec"
	"github.com/teslashibe/tonelink/pkg/fixedpoint"
	"github.com/teslashibe/tonelink/pkg/frame"
	"github.com/teslashibe/tonelink/pkg/hub"
	"github.com/teslashibe/tonelink/pkg/pcm"
	"github.com/teslashibe/tonelink/pkg/protocol"
)

// Response headers on raw audio bodies.
const (
	HeaderFrame      = "X-Tonelink-Frame"       // hex wire bytes
	HeaderSampleRate = "X-Tonelink-Sample-Rate" // Hz, on ?format=pcm
)

// PresetInfo describes a registered preset
type PresetInfo struct {
	Name       string       `json:"name"`
	FrameBytes int          `json:"frame_bytes"`
	Samples    int          `json:"samples"`
	AirtimeMs  int64        `json:"airtime_ms"`
	Config     codec.Config `json:"config"`
}

// EncodeRequest is the body of POST /api/encode. Values is used for
// fixed-point presets and Payload for raw ones.
type EncodeRequest struct {
	Preset  string    `json:"preset"`
	Values  []float64 `json:"values,omitempty"`
	Payload uint64    `json:"payload,omitempty"`
}

// DecodeRequest is the body of POST /api/decode and POST /api/frames.
// Frame holds hex encoded bytes.
type DecodeRequest struct {
	Preset string `json:"preset"`
	Frame  string `json:"frame"`
}

// BatchRequest is the body of POST /api/batch
type BatchRequest struct {
	Preset string       `json:"preset"`
	Items  []batch.Item `json:"items"`
}

// handleHealth reports liveness
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.events.ClientCount(),
		"presets": len(s.registry.Names()),
	})
}

// handlePresets lists every registered preset
func (s *Server) handlePresets(c *fiber.Ctx) error {
	names := s.registry.Names()
	out := make([]PresetInfo, 0, len(names))
	for _, name := range names {
		cfg, err := s.registry.Lookup(name)
		if err != nil {
			return s.fail(c, "presets", err)
		}
		out = append(out, PresetInfo{
			Name:       cfg.Name,
			FrameBytes: cfg.FrameBytes(),
			Samples:    cfg.SampleCount(),
			AirtimeMs:  cfg.Airtime().Milliseconds(),
			Config:     cfg,
		})
	}
	return c.JSON(out)
}

// handleRecentEvents returns the replay buffer
func (s *Server) handleRecentEvents(c *fiber.Ctx) error {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	return c.JSON(s.recent)
}

// handleEncode encodes one frame. ?format=wav returns the container and
// also sends it to listeners as a binary message; ?format=pcm returns the
// bare little-endian samples. Otherwise the JSON summary is returned.
func (s *Server) handleEncode(c *fiber.Ctx) error {
	var req EncodeRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, "encode", fmt.Errorf("%w: %w", errBadRequest, err))
	}
	cd, err := s.codecFor(req.Preset)
	if err != nil {
		return s.fail(c, "encode", err)
	}

	var res *codec.Result
	if cd.Config().Payload.Kind == codec.PayloadFixed {
		res, err = cd.Encode(c.UserContext(), req.Values)
	} else {
		res, err = cd.EncodeRaw(c.UserContext(), req.Payload)
	}
	if err != nil {
		return s.fail(c, "encode", err)
	}

	id := uuid.New().String()
	msg, err := protocol.NewEncodedMessage(id, res, req.Values)
	if err != nil {
		return s.fail(c, "encode", err)
	}
	s.publish(msg)

	switch strings.ToLower(c.Query("format")) {
	case "wav":
		s.events.BroadcastBinary(res.Audio)
		c.Set(fiber.HeaderContentType, "audio/wav")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s-%s.wav"`, res.Config.Name, id))
		c.Set(HeaderFrame, hex.EncodeToString(res.Bytes))
		return c.Send(res.Audio)
	case "pcm":
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		c.Set(HeaderFrame, hex.EncodeToString(res.Bytes))
		c.Set(HeaderSampleRate, strconv.Itoa(res.Config.Tone.SampleRate))
		return c.Send(pcm.SamplesToBytes(res.Samples))
	}

	data, err := msg.GetEncodedData()
	if err != nil {
		return s.fail(c, "encode", err)
	}
	return c.JSON(data)
}

// handleDecode parses exactly one frame
func (s *Server) handleDecode(c *fiber.Ctx) error {
	cd, b, err := s.decodeRequest(c)
	if err != nil {
		return s.fail(c, "decode", err)
	}

	d, err := cd.Decode(c.UserContext(), b)
	if err != nil {
		return s.fail(c, "decode", err)
	}

	name := cd.Config().Name
	msg, err := protocol.NewDecodedMessage(name, d)
	if err != nil {
		return s.fail(c, "decode", err)
	}
	s.publish(msg)
	return c.JSON(protocol.DecodedFrom(name, d))
}

// handleFrames scans a byte stream for every valid frame
func (s *Server) handleFrames(c *fiber.Ctx) error {
	cd, b, err := s.decodeRequest(c)
	if err != nil {
		return s.fail(c, "frames", err)
	}

	cfg := cd.Config()
	found, err := codec.Scan(cfg, b)
	if err != nil {
		return s.fail(c, "frames", err)
	}

	msg, err := protocol.NewScannedMessage(cfg.Name, found)
	if err != nil {
		return s.fail(c, "frames", err)
	}
	s.publish(msg)
	data, err := msg.GetScannedData()
	if err != nil {
		return s.fail(c, "frames", err)
	}
	return c.JSON(data)
}

// handleBatch writes many frames under the output directory
func (s *Server) handleBatch(c *fiber.Ctx) error {
	var req BatchRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, "batch", fmt.Errorf("%w: %w", errBadRequest, err))
	}
	cd, err := s.codecFor(req.Preset)
	if err != nil {
		return s.fail(c, "batch", err)
	}

	id := uuid.New().String()
	dir := filepath.Join(s.cfg.OutputDir, id)
	w := batch.NewWriter(cd, dir, batch.WithConcurrency(s.cfg.Concurrency), batch.WithLogger(s.logger))
	out, err := w.Run(c.UserContext(), req.Items)
	if err != nil {
		return s.fail(c, "batch", err)
	}

	files := make([]string, len(out))
	for i, o := range out {
		files[i] = filepath.Base(o.Path)
	}
	msg, err := protocol.NewBatchMessage(id, cd.Config().Name, dir, files)
	if err != nil {
		return s.fail(c, "batch", err)
	}
	s.publish(msg)
	return c.Status(fiber.StatusCreated).JSON(out)
}

// handleEventsWS attaches a listener to the event hub
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	if client == nil {
		return
	}
	client.Run()
}

func (s *Server) decodeRequest(c *fiber.Ctx) (*codec.Codec, []byte, error) {
	var req DecodeRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(req.Frame), "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: frame is not hex: %w", errBadRequest, err)
	}
	cd, err := s.codecFor(req.Preset)
	if err != nil {
		return nil, nil, err
	}
	return cd, b, nil
}

var errBadRequest = errors.New("web: bad request")

// statusFor maps codec errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, codec.ErrInvalidConfig):
		return fiber.StatusBadRequest
	case errors.Is(err, codec.ErrUnknownPreset):
		return fiber.StatusNotFound
	case errors.Is(err, frame.ErrTruncated),
		errors.Is(err, frame.ErrPayloadRange),
		errors.Is(err, fixedpoint.ErrFieldCount),
		errors.Is(err, codec.ErrPayloadKind),
		errors.Is(err, batch.ErrEmpty):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, op string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "op", op, "error", err)
	} else {
		s.logger.Debug("request rejected", "op", op, "status", status, "error", err)
	}
	if msg, merr := protocol.NewErrorMessage(op, err); merr == nil {
		s.publish(msg)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
