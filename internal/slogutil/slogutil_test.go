// Copyright (C) 2025 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package slogutil

import (
	"bytes"
	"errors"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

func TestFuncNameToPkg(t *testing.T) {
	cases := []struct {
		fn, pkg, typ string
	}{
		{"github.com/syncthing/discoping/lib/discover.(*Service).handlePing", "discover", ""},
		{"github.com/syncthing/discoping/lib/discover.(*Pinger).PingAll", "discover", "pinger"},
		{"github.com/syncthing/discoping/lib/packet.Decode", "packet", ""},
		{"github.com/syncthing/discoping/internal/slogutil.TestFuncNameToPkg", "slogutil", ""},
		{"github.com/syncthing/discoping/cmd/discoping.main", "discoping", ""},
		{"main.(*CLI).Run", "main", "cli"},
	}
	for _, tc := range cases {
		pkg, typ := funcNameToPkg(tc.fn)
		if pkg != tc.pkg || typ != tc.typ {
			t.Errorf("%s: got (%q, %q), expected (%q, %q)", tc.fn, pkg, typ, tc.pkg, tc.typ)
		}
	}
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(&formattingHandler{opts: &formattingOptions{
		LineFormat:   DefaultLineFormat,
		out:          buf,
		timeOverride: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}})
}

func TestFormattedLine(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.Info("Received ping", slog.String("from", "127.0.0.1:30303"), slog.String("note", "two words"), Error(errors.New("boom")))

	expected := `2026-01-02 03:04:05 INF Received ping (from=127.0.0.1:30303 note="two words" error=boom log.pkg=slogutil)` + "\n"
	if buf.String() != expected {
		t.Errorf("got  %q\nwant %q", buf.String(), expected)
	}
}

func TestGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf).With("svc", "discover").WithGroup("ping")

	l.Warn("Hello", "ttl", 60)

	if !strings.Contains(buf.String(), "WRN Hello (ping.ttl=60 svc=discover log.pkg=slogutil)") {
		t.Errorf("unexpected line %q", buf.String())
	}
}

func TestNilErrorIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).Info("Quiet", Error(nil))
	if strings.Contains(buf.String(), "error") {
		t.Errorf("nil error printed: %q", buf.String())
	}
}

func TestAddressAttr(t *testing.T) {
	var buf bytes.Buffer
	newTestLogger(&buf).Info("Sent", Address(&net.UDPAddr{IP: net.IPv4(192, 0, 2, 1), Port: 30303}))
	if !strings.Contains(buf.String(), "address=192.0.2.1:30303") {
		t.Errorf("unexpected line %q", buf.String())
	}
}

func TestPackageLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	globalLevels.Set("slogutil", slog.LevelWarn)
	defer globalLevels.Set("slogutil", slog.LevelInfo)

	l.Info("Not shown")
	if buf.Len() != 0 {
		t.Errorf("info line printed at WARN level: %q", buf.String())
	}

	globalLevels.Set("slogutil", slog.LevelDebug)
	l.Debug("Shown")
	if !strings.Contains(buf.String(), "DBG Shown") || !strings.Contains(buf.String(), "log.src.file=slogutil_test.go") {
		t.Errorf("unexpected debug line %q", buf.String())
	}
}

func TestSetLevelOverrides(t *testing.T) {
	SetLevelOverrides("alpha, beta:WARN,gamma:NOTALEVEL,,")
	globalLevels.mut.RLock()
	defer globalLevels.mut.RUnlock()
	levels := globalLevels.levels
	if levels["alpha"] != slog.LevelDebug {
		t.Errorf("alpha at %v", levels["alpha"])
	}
	if levels["beta"] != slog.LevelWarn {
		t.Errorf("beta at %v", levels["beta"])
	}
	if _, ok := levels["gamma"]; ok {
		t.Error("bad level should not be applied")
	}
}

func TestLineFormats(t *testing.T) {
	line := Line{When: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Message: "hi", Level: slog.LevelWarn}

	var buf bytes.Buffer
	if _, err := line.WriteTo(&buf, LineFormat{LevelSyslog: true}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "<4>hi\n" {
		t.Errorf("syslog format gave %q", buf.String())
	}

	buf.Reset()
	if _, err := line.WriteTo(&buf, LineFormat{TimestampFormat: time.RFC3339}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "2026-01-02T03:04:05Z hi\n" {
		t.Errorf("timestamp format gave %q", buf.String())
	}
}

func TestSetLineFormatSyslog(t *testing.T) {
	var buf bytes.Buffer
	out := globalFormatter.out
	globalFormatter.out = &buf
	SetLineFormat(SyslogLineFormat)
	defer func() {
		SetLineFormat(DefaultLineFormat)
		globalFormatter.out = out
	}()

	slog.Warn("Peer unreachable")
	if !strings.HasPrefix(buf.String(), "<4>Peer unreachable (") {
		t.Errorf("unexpected syslog line %q", buf.String())
	}
}

func TestExpensiveIsLazy(t *testing.T) {
	var calls int
	v := Expensive(func() any { calls++; return "value" })

	var buf bytes.Buffer
	l := newTestLogger(&buf)
	globalLevels.Set("slogutil", slog.LevelInfo)

	l.Debug("Dropped", slog.Any("v", v))
	if calls != 0 {
		t.Error("value computed for a suppressed line")
	}
	l.Info("Printed", slog.Any("v", v))
	if calls != 1 || !strings.Contains(buf.String(), "v=value") {
		t.Errorf("calls=%d line=%q", calls, buf.String())
	}
}
