// Package logging builds the slog loggers used by every binary.
//
// Records are JSON by default and always carry the subsystem, app and
// version attributes plus the Modified Julian Date of the record, so lines
// from different services can be merged on one timeline. Output goes to a
// writer (usually stdout), to a size-rotated file, or both.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dsa110/mnc/pkg/mjd"
)

// Config selects the log format, level and optional rotated file.
type Config struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text

	// File enables rotated file output in addition to the console writer.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Identity names the program emitting records.
type Identity struct {
	Subsystem string
	App       string
	Version   string
}

// ParseLevel maps a level name to slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("logging: level %q: %w", s, err)
	}
	return l, nil
}

// New builds a logger writing to console (may be nil) and, when cfg.File is
// set, to a rotated file. The returned closer releases the file.
func New(cfg Config, id Identity, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if console != nil {
		writers = append(writers, console)
	}
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		writers = append(writers, lj)
		closer = lj
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	w := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch cfg.Format {
	case "", "json":
		h = slog.NewJSONHandler(w, opts)
	case "text":
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("logging: unknown format %q", cfg.Format)
	}

	logger := slog.New(WithMJD(h)).With(
		"subsystem", orDash(id.Subsystem),
		"app", orDash(id.App),
		"version", orDash(id.Version),
	)
	return logger, closer, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// --- mjd handler ---

type mjdHandler struct {
	next slog.Handler
}

// WithMJD wraps h so every record gets an "mjd" attribute computed from the
// record time.
func WithMJD(h slog.Handler) slog.Handler {
	return mjdHandler{next: h}
}

func (h mjdHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.next.Enabled(ctx, l)
}

func (h mjdHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(slog.Float64("mjd", mjd.FromTime(r.Time)))
	return h.next.Handle(ctx, r)
}

func (h mjdHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return mjdHandler{next: h.next.WithAttrs(attrs)}
}

func (h mjdHandler) WithGroup(name string) slog.Handler {
	return mjdHandler{next: h.next.WithGroup(name)}
}
