package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	format     string
	output     string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{binary: ffmpegPath}
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Realtime reads the input at its native frame rate (-re), required when
// pushing a file to a live endpoint.
func (b *CommandBuilder) Realtime() *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-re")
	return b
}

// LoopInput loops over the input file forever (-stream_loop -1).
func (b *CommandBuilder) LoopInput() *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-stream_loop", "-1")
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// VideoCodec sets the video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// VideoPreset sets the encoding preset.
func (b *CommandBuilder) VideoPreset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// VideoBitrate sets the video bitrate along with matching maxrate and a
// buffer size of twice the bitrate, the usual shape for constant-rate
// live pushes.
func (b *CommandBuilder) VideoBitrate(bitrate, maxrate, bufsize string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-b:v", bitrate,
		"-maxrate", maxrate,
		"-bufsize", bufsize)
	return b
}

// GOP sets the keyframe interval (-g) and minimum keyframe distance.
func (b *CommandBuilder) GOP(size, keyintMin int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs,
		"-g", strconv.Itoa(size),
		"-keyint_min", strconv.Itoa(keyintMin))
	return b
}

// AudioCodec sets the audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// VideoFilter adds a video filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// Format sets the output container format (-f).
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.format = format
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build builds the command.
func (b *CommandBuilder) Build() *Command {
	var args []string

	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	args = append(args, b.outputArgs...)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	if b.format != "" {
		args = append(args, "-f", b.format)
	}

	args = append(args, b.output)

	return &Command{
		Binary: b.binary,
		Args:   args,
		done:   make(chan struct{}),
	}
}

// Command represents one FFmpeg invocation and owns its child process.
type Command struct {
	Binary string
	Args   []string

	mu      sync.RWMutex
	cmd     *exec.Cmd
	started time.Time
	waitErr error

	// done is closed by the waiter goroutine once the process has exited,
	// so liveness checks never poll the OS.
	done chan struct{}
}

// String returns the command as a string. The stream key is part of the
// destination URL; callers logging this must redact it first.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Start launches the process with stdout and stderr merged into the
// returned stream. A waiter goroutine reaps the process and closes Done
// when it exits; the returned reader hits EOF at the same point.
func (c *Command) Start(ctx context.Context) (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cmd != nil {
		return nil, fmt.Errorf("command already started")
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, err
	}

	c.cmd = cmd
	c.started = time.Now()

	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		c.waitErr = err
		c.mu.Unlock()
		pw.Close()
		close(c.done)
	}()

	return pr, nil
}

// Done returns a channel closed when the process has exited.
func (c *Command) Done() <-chan struct{} {
	return c.done
}

// Running reports whether the child process is still alive, without
// blocking.
func (c *Command) Running() bool {
	c.mu.RLock()
	started := c.cmd != nil
	c.mu.RUnlock()

	if !started {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Err returns the exit error after Done is closed, nil for a clean exit.
func (c *Command) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waitErr
}

// PID returns the child process ID, or 0 if not started.
func (c *Command) PID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Duration returns how long the command has been running.
func (c *Command) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.started.IsZero() {
		return 0
	}
	return time.Since(c.started)
}

// Signal sends a signal to the process. A nil process is a no-op.
func (c *Command) Signal(sig os.Signal) error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// Kill terminates the process immediately. A nil process is a no-op.
func (c *Command) Kill() error {
	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
