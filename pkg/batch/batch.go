// Package batch encodes many frames concurrently and writes each one to its
// own WAV file.
package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/pkg/codec"
)

// ErrEmpty is returned when a batch has no items.
var ErrEmpty = errors.New("batch: no items")

// Item is one frame to encode. Values is used for fixed-point presets and
// Payload for raw ones.
type Item struct {
	Values  []float64 `json:"values,omitempty"`
	Payload uint64    `json:"payload,omitempty"`
}

// Output describes one written file.
type Output struct {
	ID        string `json:"id"`
	Index     int    `json:"index"`
	Path      string `json:"path"`
	Frame     string `json:"frame"`
	Samples   int    `json:"samples"`
	Saturated []bool `json:"saturated,omitempty"`
}

// Writer fans items out over a bounded number of goroutines.
type Writer struct {
	codec  *codec.Codec
	dir    string
	limit  int
	logger *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithConcurrency bounds the number of frames encoded at once.
func WithConcurrency(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.limit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = l
	}
}

// NewWriter returns a Writer that stores files under dir.
func NewWriter(c *codec.Codec, dir string, opts ...Option) *Writer {
	w := &Writer{codec: c, dir: dir, limit: 4}
	for _, o := range opts {
		o(w)
	}
	if w.logger == nil {
		w.logger = log.L()
	}
	return w
}

// Run encodes every item and writes it as <preset>-<uuid>.wav. Outputs are
// returned in item order. The first failure cancels the remaining work.
func (w *Writer) Run(ctx context.Context, items []Item) ([]Output, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("batch: create %s: %w", w.dir, err)
	}

	cfg := w.codec.Config()
	out := make([]Output, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.limit)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			var (
				res *codec.Result
				err error
			)
			if cfg.Payload.Kind == codec.PayloadFixed {
				res, err = w.codec.Encode(gctx, item.Values)
			} else {
				res, err = w.codec.EncodeRaw(gctx, item.Payload)
			}
			if err != nil {
				return fmt.Errorf("batch: item %d: %w", i, err)
			}

			id := uuid.New().String()
			path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.wav", cfg.Name, id))
			if err := codec.WriteFile(path, res); err != nil {
				return fmt.Errorf("batch: item %d: %w", i, err)
			}

			out[i] = Output{
				ID:        id,
				Index:     i,
				Path:      path,
				Frame:     res.Frame.BitString(),
				Samples:   len(res.Samples),
				Saturated: res.Saturated,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		w.logger.Error("batch failed", "dir", w.dir, "error", err)
		return nil, err
	}
	w.logger.Info("batch written", "dir", w.dir, "files", len(out), "preset", cfg.Name)
	return out, nil
}

// ParseItems reads one item per line. Fixed-point lines hold comma
// separated values; raw lines hold one integer in any Go literal base.
// Blank lines and lines starting with # are skipped.
func ParseItems(r io.Reader, kind codec.PayloadKind) ([]Item, error) {
	var items []Item
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		item, err := ParseItem(text, kind)
		if err != nil {
			return nil, fmt.Errorf("batch: line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("batch: read items: %w", err)
	}
	return items, nil
}

// ParseItem parses a single item in the ParseItems line format.
func ParseItem(text string, kind codec.PayloadKind) (Item, error) {
	if kind != codec.PayloadFixed {
		v, err := strconv.ParseUint(strings.TrimSpace(text), 0, 64)
		if err != nil {
			return Item{}, fmt.Errorf("payload %q: %w", text, err)
		}
		return Item{Payload: v}, nil
	}

	parts := strings.Split(text, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Item{}, fmt.Errorf("value %q: %w", p, err)
		}
		values = append(values, v)
	}
	return Item{Values: values}, nil
}
