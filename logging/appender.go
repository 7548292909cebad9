package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultTimeFormatStr is the time format used by the console and test appenders.
const DefaultTimeFormatStr = "2006-01-02T15:04:05.000Z0700"

// Appender is an output for log entries. A `zapcore.Core` satisfies this interface, which is how
// the test observer is attached.
type Appender interface {
	// Write submits a structured log entry to the appender for logging.
	Write(zapcore.Entry, []zapcore.Field) error
	// Sync is for signaling that any buffered logs to `Write` should be flushed. E.g: at shutdown.
	Sync() error
}

// ConsoleAppender writes human readable, tab delimited lines to a zapcore.WriteSyncer.
type ConsoleAppender struct {
	encoder zapcore.Encoder
	out     zapcore.WriteSyncer
}

// NewStdoutAppender creates a new appender that outputs to stdout.
func NewStdoutAppender() ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender creates a new appender that outputs to the input writer.
func NewWriterAppender(writer zapcore.WriteSyncer) ConsoleAppender {
	config := NewZapLoggerConfig()
	config.EncodeTime = zapcore.TimeEncoderOfLayout(DefaultTimeFormatStr)
	return ConsoleAppender{
		encoder: zapcore.NewConsoleEncoder(config),
		out:     writer,
	}
}

// Write outputs the log entry.
func (appender ConsoleAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = appender.out.Write(buf.Bytes())
	return err
}

// Sync flushes the underlying writer.
func (appender ConsoleAppender) Sync() error {
	return appender.out.Sync()
}

// FileAppender writes json log lines to a size rotated file.
type FileAppender struct {
	encoder zapcore.Encoder
	file    *lumberjack.Logger
}

// NewFileAppender creates an appender rotating `filename` once it grows past `maxSizeMB`.
func NewFileAppender(filename string, maxSizeMB, maxBackups int) *FileAppender {
	if maxSizeMB <= 0 {
		maxSizeMB = 16
	}
	return &FileAppender{
		encoder: zapcore.NewJSONEncoder(NewZapLoggerConfig()),
		file: &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			Compress:   true,
		},
	}
}

// Write outputs the log entry as a json line.
func (appender *FileAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	buf, err := appender.encoder.EncodeEntry(entry, fields)
	if err != nil {
		return err
	}
	defer buf.Free()

	_, err = appender.file.Write(buf.Bytes())
	return err
}

// Sync is a no-op, lumberjack does not buffer.
func (appender *FileAppender) Sync() error {
	return nil
}

// Close closes the underlying file.
func (appender *FileAppender) Close() error {
	return appender.file.Close()
}
