package ptyio

import (
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPTYTransport_CreateAndWriteRoundTrip(t *testing.T) {
	tr := NewPTYTransport("/bin/sh")

	res, err := tr.Create("p1", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected create to succeed, got %+v", res)
	}
	defer tr.Kill("p1")

	var mu sync.Mutex
	var out strings.Builder
	done := make(chan struct{}, 1)
	tr.OnData("p1", func(paneID string, data []byte) {
		mu.Lock()
		out.Write(data)
		text := out.String()
		mu.Unlock()
		if strings.Contains(text, "panehub-pty-ok") {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	if _, err := tr.Write("p1", []byte("echo panehub-pty-ok\n"), WriteMeta{}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echoed output")
	}
}

func TestPTYTransport_WriteToUnknownPaneReportsPaneGone(t *testing.T) {
	tr := NewPTYTransport("/bin/sh")
	res, err := tr.Write("missing", []byte("x"), WriteMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Success || res.Reason != "pane_gone" {
		t.Fatalf("expected pane_gone result, got %+v", res)
	}
}

func TestPTYTransport_KillTerminatesProcessAndFiresExit(t *testing.T) {
	tr := NewPTYTransport("/bin/sh")
	if _, err := tr.Create("p1", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	exited := make(chan int, 1)
	tr.OnExit("p1", func(paneID string, exitCode int) {
		exited <- exitCode
	})

	if err := tr.Kill("p1"); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for exit handler")
	}
}

func TestPTYTransport_ResizeDoesNotErrorOnLiveSession(t *testing.T) {
	tr := NewPTYTransport("/bin/sh")
	if _, err := tr.Create("p1", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	defer tr.Kill("p1")

	if err := tr.Resize("p1", 100, 40); err != nil {
		t.Fatalf("resize: %v", err)
	}
}

func TestPTYTransport_IsProcessRunningReflectsOwnPID(t *testing.T) {
	tr := NewPTYTransport("/bin/sh")
	if !tr.IsProcessRunning(os.Getpid()) {
		t.Fatal("expected own pid to be reported as running")
	}
	if tr.IsProcessRunning(0) {
		t.Fatal("expected pid 0 to be reported as not running")
	}
}
