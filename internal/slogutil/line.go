// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// A Line is one formatted log line.
type Line struct {
	When    time.Time
	Message string
	Level   slog.Level
}

func (l *Line) levelStr() string {
	switch {
	case l.Level < slog.LevelInfo:
		return "DBG"
	case l.Level < slog.LevelWarn:
		return "INF"
	case l.Level < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

func (l *Line) syslogPriority() int {
	switch {
	case l.Level < slog.LevelInfo:
		return 7
	case l.Level < slog.LevelWarn:
		return 6
	case l.Level < slog.LevelError:
		return 4
	default:
		return 3
	}
}

func (l *Line) WriteTo(w io.Writer, f LineFormat) (int64, error) {
	buf := make([]byte, 0, len(l.Message)+32)
	if f.LevelSyslog {
		buf = fmt.Appendf(buf, "<%d>", l.syslogPriority())
	}
	if f.TimestampFormat != "" {
		buf = l.When.AppendFormat(buf, f.TimestampFormat)
		buf = append(buf, ' ')
	}
	if f.LevelString {
		buf = append(buf, l.levelStr()...)
		buf = append(buf, ' ')
	}
	buf = append(buf, l.Message...)
	buf = append(buf, '\n')
	n, err := w.Write(buf)
	return int64(n), err
}
