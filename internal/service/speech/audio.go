package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// AudioSource produces raw 16 kHz, 16-bit, mono PCM for recognition.
type AudioSource interface {
	Available() bool
	Open(ctx context.Context) (io.ReadCloser, error)
}

// AudioSink plays synthesized audio. Play blocks until playback finishes
// or ctx is cancelled.
type AudioSink interface {
	Available() bool
	Play(ctx context.Context, audio []byte, format string) error
}

// CommandSource captures audio from an external program writing PCM to stdout,
// e.g. "arecord -q -f S16_LE -r 16000 -c 1 -t raw".
type CommandSource struct {
	Command string
}

// Available reports whether the capture program is on PATH.
func (s CommandSource) Available() bool {
	return commandAvailable(s.Command)
}

// Open starts the capture program. Closing the reader stops it.
func (s CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	fields := strings.Fields(s.Command)
	if len(fields) == 0 {
		return nil, errors.New("capture command is empty")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", fields[0], err)
	}
	return &commandReader{cmd: cmd, ReadCloser: stdout}, nil
}

type commandReader struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (r *commandReader) Close() error {
	r.once.Do(func() {
		if r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
		}
		_ = r.cmd.Wait()
	})
	return nil
}

// CommandSink plays audio by piping it into an external player,
// e.g. "ffplay -nodisp -autoexit -loglevel quiet -".
type CommandSink struct {
	Command string
}

// Available reports whether the player is on PATH.
func (s CommandSink) Available() bool {
	return commandAvailable(s.Command)
}

// Play runs the player with audio on stdin.
func (s CommandSink) Play(ctx context.Context, audio []byte, _ string) error {
	fields := strings.Fields(s.Command)
	if len(fields) == 0 {
		return errors.New("player command is empty")
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdin = bytes.NewReader(audio)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("run %s: %w", fields[0], err)
	}
	return nil
}

func commandAvailable(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	_, err := exec.LookPath(fields[0])
	return err == nil
}

// ReaderSource replays audio from a reader, optionally paced to real time.
// It can be opened once.
type ReaderSource struct {
	R io.Reader
	// Pace is the delay after every ChunkSize bytes; zero disables pacing.
	Pace      time.Duration
	ChunkSize int

	mu     sync.Mutex
	opened bool
}

// Available implements AudioSource.
func (s *ReaderSource) Available() bool { return s.R != nil }

// Open implements AudioSource.
func (s *ReaderSource) Open(ctx context.Context) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opened {
		return nil, errors.New("reader source already consumed")
	}
	s.opened = true

	chunk := s.ChunkSize
	if chunk <= 0 {
		chunk = asrChunkSize
	}
	return &pacedReader{ctx: ctx, r: s.R, pace: s.Pace, chunk: chunk, closed: make(chan struct{})}, nil
}

type pacedReader struct {
	ctx    context.Context
	r      io.Reader
	pace   time.Duration
	chunk  int
	read   int
	closed chan struct{}
	once   sync.Once
}

func (p *pacedReader) Read(b []byte) (int, error) {
	select {
	case <-p.closed:
		return 0, io.EOF
	default:
	}

	if len(b) > p.chunk-p.read {
		b = b[:p.chunk-p.read]
	}
	n, err := p.r.Read(b)
	p.read += n
	if p.read >= p.chunk {
		p.read = 0
		if p.pace > 0 {
			select {
			case <-time.After(p.pace):
			case <-p.closed:
			case <-p.ctx.Done():
				return n, p.ctx.Err()
			}
		}
	}
	return n, err
}

func (p *pacedReader) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

// errSourceReplaced closes a pipe reader when a newer stream opens the source.
var errSourceReplaced = errors.New("audio source reopened")

// PipeSource is fed by Write (e.g. audio frames from a browser) and read by
// the current recognition stream. Writes with no open stream are dropped.
type PipeSource struct {
	mu sync.Mutex
	w  *io.PipeWriter
}

// NewPipeSource returns an idle pipe source.
func NewPipeSource() *PipeSource { return &PipeSource{} }

// Available implements AudioSource.
func (p *PipeSource) Available() bool { return true }

// Open implements AudioSource. A previous reader is terminated.
func (p *PipeSource) Open(context.Context) (io.ReadCloser, error) {
	r, w := io.Pipe()

	p.mu.Lock()
	if p.w != nil {
		_ = p.w.CloseWithError(errSourceReplaced)
	}
	p.w = w
	p.mu.Unlock()

	return r, nil
}

// Write forwards audio to the open stream. It blocks until the stream reads it.
func (p *PipeSource) Write(b []byte) (int, error) {
	p.mu.Lock()
	w := p.w
	p.mu.Unlock()

	if w == nil {
		return len(b), nil
	}
	n, err := w.Write(b)
	if errors.Is(err, io.ErrClosedPipe) {
		p.release(w)
		return len(b), nil
	}
	return n, err
}

// CloseInput signals end of audio to the open stream.
func (p *PipeSource) CloseInput() {
	p.mu.Lock()
	w := p.w
	p.w = nil
	p.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
}

func (p *PipeSource) release(w *io.PipeWriter) {
	p.mu.Lock()
	if p.w == w {
		p.w = nil
	}
	p.mu.Unlock()
}

// FuncSink adapts a function into an AudioSink.
type FuncSink func(ctx context.Context, audio []byte, format string) error

// Available implements AudioSink.
func (f FuncSink) Available() bool { return f != nil }

// Play implements AudioSink.
func (f FuncSink) Play(ctx context.Context, audio []byte, format string) error {
	return f(ctx, audio, format)
}
