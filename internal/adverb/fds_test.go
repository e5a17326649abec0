//go:build linux

package adverb_test

import (
	"os"
	"testing"

	"github.com/pressure-vessel/launcher/internal/adverb"
)

func TestBuildChildFilesDefaultsStdio(t *testing.T) {
	files, err := adverb.BuildChildFiles(nil, nil, nil, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		t.Fatalf("BuildChildFiles: %v", err)
	}

	if len(files) != 3 || files[0] != os.Stdin || files[1] != os.Stdout || files[2] != os.Stderr {
		t.Fatalf("expected default stdio passthrough, got %v", files)
	}
}

func TestBuildChildFilesAssignmentOverridesTarget(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	defer r.Close()
	defer w.Close()

	assignments := []adverb.FDAssignment{{Target: 5, Source: int(r.Fd())}}

	files, err := adverb.BuildChildFiles(assignments, nil, nil, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		t.Fatalf("BuildChildFiles: %v", err)
	}

	if len(files) != 6 {
		t.Fatalf("expected 6 entries (fds 0-5), got %d", len(files))
	}

	for i, wantPresent := range []bool{true, true, true, false, false, true} {
		if (files[i] != nil) != wantPresent {
			t.Errorf("index %d: file present = %v, want %v", i, files[i] != nil, wantPresent)
		}
	}

	if got := int(files[5].Fd()); got != int(r.Fd()) {
		t.Errorf("files[5].Fd() = %d, want %d", got, int(r.Fd()))
	}
}

func TestBuildChildFilesPassFDSelfMaps(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}

	defer r.Close()
	defer w.Close()

	fd := int(r.Fd())

	files, err := adverb.BuildChildFiles(nil, []int{fd}, nil, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		t.Fatalf("BuildChildFiles: %v", err)
	}

	if len(files) <= fd || files[fd] == nil {
		t.Fatalf("expected passed fd %d to be present in the plan", fd)
	}

	if got := int(files[fd].Fd()); got != fd {
		t.Errorf("files[%d].Fd() = %d, want self-mapped %d", fd, got, fd)
	}
}

func TestBuildChildFilesRejectsNegativeSource(t *testing.T) {
	_, err := adverb.BuildChildFiles([]adverb.FDAssignment{{Target: 3, Source: -1}}, nil, nil, os.Stdin, os.Stdout, os.Stderr)
	if err == nil {
		t.Fatal("expected an error for a negative fd source")
	}
}
