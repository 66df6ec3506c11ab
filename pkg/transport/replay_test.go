// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 the ramses-rf authors

package transport

import (
	"strings"
	"testing"
	"time"
)

const sampleLog = `# ramses packet log
2022-07-03T21:52:01.954380 045  I --- 29:091138 --:------ 29:091138 1FC9 024 0022F17564020022F37564026610E0756402001FC9756402
! RF noise diagnostic
2022-07-03T21:52:02.131052 064  W --- 32:022222 29:091138 --:------ 1FC9 012 0031D98056CE0031DA8056CE

2022-07-03T21:52:02.302750 045  I --- 29:091138 32:022222 --:------ 1FC9 001 00
`

func collect(t *testing.T, tr *ReplayTransport, n int) []Line {
	t.Helper()
	var lines []Line
	timeout := time.After(2 * time.Second)
	for len(lines) < n {
		select {
		case l := <-tr.Lines():
			lines = append(lines, l)
		case <-timeout:
			t.Fatalf("timed out after %d of %d lines", len(lines), n)
		}
	}
	return lines
}

func TestReplay_FiltersAndYields(t *testing.T) {
	tr := NewReplay(strings.NewReader(sampleLog), 0)
	defer tr.Close()

	lines := collect(t, tr, 3)
	if !strings.Contains(lines[0].Text, "1FC9 024") {
		t.Errorf("first line = %q", lines[0].Text)
	}
	if !strings.Contains(lines[1].Text, " W ") {
		t.Errorf("second line = %q", lines[1].Text)
	}

	select {
	case <-tr.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}

	if got := tr.Statistics().Skipped.Load(); got != 2 {
		t.Errorf("skipped = %d, want 2 (comment and diagnostic)", got)
	}
	if got := tr.Statistics().LinesIn.Load(); got != 3 {
		t.Errorf("lines in = %d, want 3", got)
	}
}

func TestReplay_WriteEchoes(t *testing.T) {
	tr := NewReplay(strings.NewReader(""), 0)
	defer tr.Close()

	<-tr.Done()
	if err := tr.WriteLine(" I --- 18:000730 --:------ 18:000730 0008 002 00C8"); err != nil {
		t.Fatal(err)
	}
	lines := collect(t, tr, 1)
	if !strings.Contains(lines[0].Text, "0008 002 00C8") {
		t.Errorf("echo = %q", lines[0].Text)
	}
}

func TestWantLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"045  I --- 29:091138 --:------ 29:091138 1FC9 001 00", true},
		{"# evofw3 0.7.1", false},
		{"!C mode", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := wantLine(tt.line); got != tt.want {
			t.Errorf("wantLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
