package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const timeFormat = "2006-01-02 15:04:05.000"

type Config struct {
	Level       string
	ToFile      bool
	FileName    string
	Dir         string
	Formatted   bool
	MaxSizeMB   int
	MaxLogFiles int
}

// New monta o logger do processo: console colorido em stderr e, se ToFile,
// arquivo rotativo (lumberjack). O io.Closer fecha o arquivo (no-op sem arquivo).
func New(cfg Config) (zerolog.Logger, io.Closer) {
	zerolog.TimeFieldFormat = timeFormat
	zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
		return fmt.Sprintf("%s:%d", stripCallerPath(file), line)
	}

	writers := []io.Writer{consoleWriter{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat}}}

	var closer io.Closer = nopCloser{}
	var fileErr error
	if cfg.ToFile {
		fw, err := newFileWriter(cfg, time.Now())
		if err != nil {
			fileErr = err
		} else {
			writers = append(writers, fw)
			closer = fw.Logger
		}
	}

	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Caller().
		Logger()

	if fileErr != nil {
		log.Warn().Err(fileErr).Msg("file logging disabled")
	}
	return log, closer
}

// ParseLevel aceita "debug", "warn"...; qualquer outra coisa vira info.
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return parsed
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// consoleWriter devolve len(p): o ConsoleWriter reescreve a linha e o tamanho
// real quebraria o zerolog com "short write".
type consoleWriter struct {
	zerolog.ConsoleWriter
}

func (c consoleWriter) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	_, err := c.ConsoleWriter.Write(p)
	return len(p), err
}

type fileWriter struct {
	*lumberjack.Logger
	formatted bool
}

func (f fileWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if !f.formatted {
		return f.Logger.Write(p)
	}
	line, err := formatEntry(level, p)
	if err != nil {
		return f.Logger.Write(p)
	}
	_, err = f.Logger.Write([]byte(line))
	return len(p), err
}

// newFileWriter abre <Dir>/<FileName>_<dd-mm-yyyy>[_json].log; execuções do
// mesmo dia vão pro mesmo arquivo.
func newFileWriter(cfg Config, now time.Time) (*fileWriter, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := deleteOldLogFiles(dir, cfg.MaxLogFiles); err != nil {
		return nil, fmt.Errorf("clean old logs: %w", err)
	}

	suffix := "_json"
	if cfg.Formatted {
		suffix = ""
	}
	name := cfg.FileName
	if name == "" {
		name = "cam-snap"
	}

	lj := &lumberjack.Logger{
		Filename:   filepath.Join(dir, fmt.Sprintf("%s_%s%s.log", name, now.Format("02-01-2006"), suffix)),
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     30,
	}
	fmt.Fprintf(lj, "\n==== started %s ====\n\n", now.Format("2006-01-02 15:04:05"))
	return &fileWriter{Logger: lj, formatted: cfg.Formatted}, nil
}

// formatEntry converte a linha JSON do zerolog em texto legível.
func formatEntry(level zerolog.Level, p []byte) (string, error) {
	var entry map[string]any
	if err := json.Unmarshal(p, &entry); err != nil {
		return "", err
	}
	ts, _ := entry[zerolog.TimestampFieldName].(string)
	msg, _ := entry[zerolog.MessageFieldName].(string)
	caller, _ := entry[zerolog.CallerFieldName].(string)

	var extras []string
	for k, v := range entry {
		switch k {
		case zerolog.TimestampFieldName, zerolog.MessageFieldName, zerolog.LevelFieldName, zerolog.CallerFieldName:
			continue
		}
		extras = append(extras, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(extras)

	return fmt.Sprintf("%s | %-5s | %-20s | %s | %s\n", ts, level.String(), caller, msg, strings.Join(extras, " ")), nil
}

// stripCallerPath: "internal/onvif/client.go" -> "client"
func stripCallerPath(file string) string {
	if i := strings.LastIndex(file, "/"); i >= 0 {
		file = file[i+1:]
	}
	return strings.TrimSuffix(file, ".go")
}

// deleteOldLogFiles mantém só os maxFiles .log mais recentes em dir.
func deleteOldLogFiles(dir string, maxFiles int) error {
	if maxFiles <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	type logFile struct {
		name string
		mod  time.Time
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{e.Name(), info.ModTime()})
	}
	if len(files) <= maxFiles {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	var errs []string
	for _, f := range files[:len(files)-maxFiles] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("remove old logs: %s", strings.Join(errs, "; "))
	}
	return nil
}
