//
// (C) Copyright 2020-2024 Intel Corporation.
//
// SPDX-License-Identifier: BSD-2-Clause-Patent
//

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
)

const (
	logOutputDepth = 3
	emptyLogFlags  = 0
	debugLogFlags  = log.LstdFlags | log.Lmicroseconds | log.Lshortfile
	infoLogFlags   = log.LstdFlags
	noticeLogFlags = log.LstdFlags
	errorLogFlags  = log.LstdFlags
)

type baseLogger struct {
	dest   io.Writer
	log    *log.Logger
	prefix string
}

// NewDebugLogger returns a DebugLogger configured for outputting
// debugging messages with standard formatting (e.g. to stderr,
// logfile, etc.)
func NewDebugLogger(output io.Writer) *DefaultDebugLogger {
	return &DefaultDebugLogger{
		baseLogger{
			dest: output,
			log:  log.New(output, "DEBUG ", debugLogFlags),
		},
	}
}

// DefaultDebugLogger implements the DebugLogger interface.
type DefaultDebugLogger struct {
	baseLogger
}

// Debugf emits a formatted debug message.
func (l *DefaultDebugLogger) Debugf(format string, args ...interface{}) {
	out := fmt.Sprintf(format, args...)
	if err := l.log.Output(logOutputDepth, out); err != nil {
		fmt.Fprintf(os.Stderr, "logger Debugf() failed: %s\n", err)
	}
}

// NewCommandLineInfoLogger returns an InfoLogger configured
// for outputting unadorned informational messages (i.e. no
// timestamps, source info, etc); typically used for CLI
// utility logging.
func NewCommandLineInfoLogger(output io.Writer) *DefaultInfoLogger {
	return &DefaultInfoLogger{
		baseLogger{
			dest: output,
			log:  log.New(output, "", emptyLogFlags),
		},
	}
}

// NewInfoLogger returns an InfoLogger configured for outputting
// informational messages with standard formatting (e.g. to
// stderr, logfile, etc.)
func NewInfoLogger(prefix string, output io.Writer) *DefaultInfoLogger {
	loggerPrefix := "INFO "
	if prefix != "" {
		loggerPrefix = prefix + " " + loggerPrefix
	}
	return &DefaultInfoLogger{
		baseLogger{
			dest:   output,
			prefix: prefix,
			log:    log.New(output, loggerPrefix, infoLogFlags),
		},
	}
}

// DefaultInfoLogger implements the InfoLogger interface.
type DefaultInfoLogger struct {
	baseLogger
}

// Infof emits a formatted informational message.
func (l *DefaultInfoLogger) Infof(format string, args ...interface{}) {
	out := fmt.Sprintf(format, args...)
	if err := l.log.Output(logOutputDepth, out); err != nil {
		fmt.Fprintf(os.Stderr, "logger Infof() failed: %s\n", err)
	}
}

// NewCommandLineNoticeLogger returns a NoticeLogger configured
// for outputting unadorned notice messages; typically used
// for CLI utility logging.
func NewCommandLineNoticeLogger(output io.Writer) *DefaultNoticeLogger {
	return &DefaultNoticeLogger{
		baseLogger{
			dest: output,
			log:  log.New(output, "NOTICE: ", emptyLogFlags),
		},
	}
}

// NewNoticeLogger returns a NoticeLogger configured for outputting
// notice messages with standard formatting (e.g. to stderr,
// logfile, etc.)
func NewNoticeLogger(prefix string, output io.Writer) *DefaultNoticeLogger {
	loggerPrefix := "NOTICE "
	if prefix != "" {
		loggerPrefix = prefix + " " + loggerPrefix
	}
	return &DefaultNoticeLogger{
		baseLogger{
			dest:   output,
			prefix: prefix,
			log:    log.New(output, loggerPrefix, noticeLogFlags),
		},
	}
}

// DefaultNoticeLogger implements the NoticeLogger interface.
type DefaultNoticeLogger struct {
	baseLogger
}

// Noticef emits a formatted notice message.
func (l *DefaultNoticeLogger) Noticef(format string, args ...interface{}) {
	out := fmt.Sprintf(format, args...)
	if err := l.log.Output(logOutputDepth, out); err != nil {
		fmt.Fprintf(os.Stderr, "logger Noticef() failed: %s\n", err)
	}
}

// NewCommandLineErrorLogger returns an ErrorLogger configured
// for outputting unadorned error messages (i.e. no timestamps,
// source info, etc); typically used for CLI utility logging.
func NewCommandLineErrorLogger(output io.Writer) *DefaultErrorLogger {
	return &DefaultErrorLogger{
		baseLogger{
			dest: output,
			log:  log.New(output, "ERROR: ", emptyLogFlags),
		},
	}
}

// NewErrorLogger returns an ErrorLogger configured for outputting
// error messages with standard formatting (e.g. to stderr, logfile, etc.)
func NewErrorLogger(prefix string, output io.Writer) *DefaultErrorLogger {
	loggerPrefix := "ERROR "
	if prefix != "" {
		loggerPrefix = prefix + " " + loggerPrefix
	}
	return &DefaultErrorLogger{
		baseLogger{
			dest:   output,
			prefix: prefix,
			log:    log.New(output, loggerPrefix, errorLogFlags),
		},
	}
}

// DefaultErrorLogger implements the ErrorLogger interface.
type DefaultErrorLogger struct {
	baseLogger
}

// Errorf emits a formatted error message.
func (l *DefaultErrorLogger) Errorf(format string, args ...interface{}) {
	out := fmt.Sprintf(format, args...)
	if err := l.log.Output(logOutputDepth, out); err != nil {
		fmt.Fprintf(os.Stderr, "logger Errorf() failed: %s\n", err)
	}
}
