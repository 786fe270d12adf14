package recognition

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"parley/internal/ports"
)

// pumpAudioChunks forwards microphone audio to the provider until the audio
// session ends, then closes the send side so the provider can flush its
// last results.
func pumpAudioChunks(
	audio ports.AudioSession,
	stream ports.StreamingSession,
	chunkSize int,
	report func(error),
	done chan struct{},
) {
	defer close(done)
	defer func() { _ = stream.CloseSend() }()

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := audio.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				report(fmt.Errorf("failed to stream audio: %w", sendErr))
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				report(fmt.Errorf("audio capture error: %w", err))
			}
			return
		}
	}
}

// waitForStream waits for the provider to finish after the send side is
// closed. A provider that is still open after timeout is closed.
func waitForStream(session ports.StreamingSession, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- session.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = session.Close()
		if err := <-done; err != nil {
			return err
		}
		return fmt.Errorf("transcription stream did not close within %s", timeout)
	}
}
