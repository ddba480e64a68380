package infra

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/msaeedsaeedi/serialsoak/internal/domain"
)

const logTimeFormat = "2006-01-02 15:04:05"

// LogSink writes every run event to a per-day file and mirrors the bare
// message to a live writer.
type LogSink struct {
	Logger zerolog.Logger
	Path   string
	file   *os.File
}

// LogPath returns <dir>/<YYYY-MM-DD>/[<project>_]<id>.log.
func LogPath(dir, project, id string, now time.Time) string {
	name := id + ".log"
	if project != "" {
		name = project + "_" + name
	}
	return filepath.Join(dir, now.Format("2006-01-02"), name)
}

func NewLogSink(cfg *domain.RunConfig, live io.Writer) (*LogSink, error) {
	dir := cfg.LogDir
	if dir == "" {
		dir = "logs"
	}

	path := LogPath(dir, cfg.Project, cfg.InstanceID, time.Now())
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	writers := []io.Writer{fileWriter(f)}
	if live != nil {
		writers = append(writers, liveWriter(live))
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(levelFor(cfg.Verbosity)).
		With().
		Timestamp().
		Logger()

	return &LogSink{Logger: logger, Path: path, file: f}, nil
}

func (s *LogSink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func fileWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: logTimeFormat,
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.MessageFieldName,
		},
		FormatLevel: func(i interface{}) string {
			return fmt.Sprintf("- %s -", strings.ToUpper(fmt.Sprint(i)))
		},
	}
}

func liveWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		PartsOrder: []string{zerolog.MessageFieldName},
	}
}

func levelFor(v domain.VerbosityLevel) zerolog.Level {
	switch v {
	case domain.VerbositySilent:
		return zerolog.WarnLevel
	case domain.VerbosityVerbose:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
