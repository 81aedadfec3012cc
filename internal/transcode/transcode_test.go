package transcode_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/castshelf/internal/transcode"
)

// fakeFFmpeg writes a shell script standing in for the real ffmpeg binary so
// these tests don't depend on one being installed. It ignores its arguments
// and either echoes a fixed payload to stdout or sleeps past any deadline.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg script is a POSIX shell script")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestStart_StreamsOutput(t *testing.T) {
	path := fakeFFmpeg(t, `printf 'encoded-bytes'`)
	tr := transcode.New(path, time.Second)

	res, err := tr.Start(context.Background(), transcode.Request{
		Source:  transcode.Source{Path: "/audio/book/ch1.mp3"},
		Profile: transcode.ProfileMedium,
	})
	require.NoError(t, err)

	data, err := io.ReadAll(res.Stream)
	require.NoError(t, err)
	assert.Equal(t, "encoded-bytes", string(data))

	assert.NoError(t, <-res.Done)
}

func TestStart_PassthroughGuessesMimeFromExtension(t *testing.T) {
	path := fakeFFmpeg(t, `cat >/dev/null`)
	tr := transcode.New(path, time.Second)

	res, err := tr.Start(context.Background(), transcode.Request{
		Source:  transcode.Source{Path: "/audio/book/ch1.flac"},
		Profile: transcode.ProfilePassthrough,
	})
	require.NoError(t, err)
	assert.Equal(t, "audio/flac", res.Mime)
	io.ReadAll(res.Stream)
	<-res.Done
}

func TestStart_KillsOnDeadline(t *testing.T) {
	path := fakeFFmpeg(t, `sleep 5`)
	tr := transcode.New(path, 50*time.Millisecond)

	res, err := tr.Start(context.Background(), transcode.Request{
		Source:  transcode.Source{Path: "/audio/book/ch1.mp3"},
		Profile: transcode.ProfileLow,
	})
	require.NoError(t, err)

	io.ReadAll(res.Stream)
	err = <-res.Done
	assert.ErrorIs(t, err, transcode.ErrDeadlineExceeded)
}

func TestStart_CancelOnDrop(t *testing.T) {
	path := fakeFFmpeg(t, `
		trap 'exit 1' PIPE
		i=0
		while [ $i -lt 10000 ]; do
			printf 'xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx' || exit 1
			i=$((i+1))
		done
	`)
	tr := transcode.New(path, 5*time.Second)

	res, err := tr.Start(context.Background(), transcode.Request{
		Source:  transcode.Source{Path: "/audio/book/ch1.mp3"},
		Profile: transcode.ProfileHigh,
	})
	require.NoError(t, err)

	// Read a little, then drop the stream without draining it. The
	// subprocess should see its stdout pipe close and exit on its own.
	buf := make([]byte, 32)
	_, err = res.Stream.Read(buf)
	require.NoError(t, err)
	require.NoError(t, res.Stream.Close())

	select {
	case <-res.Done:
	case <-time.After(2 * time.Second):
		t.Fatal("subprocess did not exit after stream was dropped")
	}
}

func TestBuildArgs_PassthroughUsesStreamCopy(t *testing.T) {
	// buildArgs is unexported; exercise it indirectly through a fake
	// ffmpeg that dumps its argv so the command shape can be asserted.
	path := fakeFFmpeg(t, `printf '%s\n' "$@"`)
	tr := transcode.New(path, time.Second)

	res, err := tr.Start(context.Background(), transcode.Request{
		Source:  transcode.Source{Path: "/audio/book/ch1.mp3"},
		SeekS:   2.5,
		Span:    transcode.Span{StartS: 10, EndS: 40},
		Profile: transcode.ProfilePassthrough,
	})
	require.NoError(t, err)

	data, err := io.ReadAll(res.Stream)
	require.NoError(t, err)
	<-res.Done

	argv := string(data)
	assert.Contains(t, argv, "-ss")
	assert.Contains(t, argv, "12.500")
	assert.Contains(t, argv, "-t")
	assert.Contains(t, argv, "27.500")
	assert.Contains(t, argv, "copy")
	assert.NotContains(t, argv, "-b:a")
}
