package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// FFmpegSource lê o stream RTSP com um processo ffmpeg que reemite cada frame
// como JPEG no stdout (image2pipe/mjpeg). Grab só separa os bytes do frame;
// Read também decodifica.
type FFmpegSource struct {
	binary string
	log    zerolog.Logger

	cmd      *exec.Cmd
	reader   *bufio.Reader
	stderr   tailBuffer
	pending  []byte
	released bool
}

func NewFFmpegSource(binary string, log zerolog.Logger) *FFmpegSource {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegSource{binary: binary, log: log}
}

// FFmpegFactory devolve uma SourceFactory que cria um FFmpegSource por captura.
func FFmpegFactory(binary string, log zerolog.Logger) SourceFactory {
	return func() Source { return NewFFmpegSource(binary, log) }
}

func ffmpegArgs(uri string) []string {
	return []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-i", uri,
		"-an", "-sn", "-dn",
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	}
}

// Open inicia o ffmpeg e espera o primeiro frame, pra falhar logo quando o
// stream não abre. O processo morre junto com ctx.
func (s *FFmpegSource) Open(ctx context.Context, uri string) error {
	cmd := exec.CommandContext(ctx, s.binary, ffmpegArgs(uri)...)
	cmd.Stderr = &s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.reader = bufio.NewReaderSize(stdout, 64<<10)

	frame, err := readJPEGFrame(s.reader)
	if err != nil {
		return fmt.Errorf("no frame from ffmpeg: %w | %s", err, s.stderr.String())
	}
	s.pending = frame
	return nil
}

func (s *FFmpegSource) next() ([]byte, error) {
	if s.reader == nil {
		return nil, errors.New("source not open")
	}
	if s.pending != nil {
		f := s.pending
		s.pending = nil
		return f, nil
	}
	return readJPEGFrame(s.reader)
}

func (s *FFmpegSource) Grab() error {
	_, err := s.next()
	return err
}

func (s *FFmpegSource) Read() (image.Image, error) {
	data, err := s.next()
	if err != nil {
		return nil, err
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Release mata o ffmpeg e espera o processo (fecha a conexão RTSP).
func (s *FFmpegSource) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	_ = s.cmd.Process.Kill()
	_ = s.cmd.Wait() // "signal: killed" é esperado
	if tail := s.stderr.String(); tail != "" {
		s.log.Debug().Str("ffmpeg_stderr", tail).Msg("ffmpeg exited")
	}
	return nil
}

// tailBuffer guarda só o final do stderr do ffmpeg (escrito por outra goroutine).
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailBufferSize = 4 << 10

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailBufferSize {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-tailBufferSize:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf))
}

// marcadores JPEG
const (
	markerSOI = 0xD8
	markerEOI = 0xD9
	markerSOS = 0xDA
	markerTEM = 0x01
)

func isRST(m byte) bool { return m >= 0xD0 && m <= 0xD7 }

// readJPEGFrame lê um JPEG completo (SOI..EOI) seguindo os segmentos, sem
// decodificar. io.EOF indica fim do stream (inclusive frame truncado).
func readJPEGFrame(r *bufio.Reader) ([]byte, error) {
	if err := skipToSOI(r); err != nil {
		return nil, err
	}
	buf := []byte{0xFF, markerSOI}

	marker, err := readMarker(r, &buf)
	for err == nil {
		switch {
		case marker == markerEOI:
			return buf, nil
		case marker == markerTEM || isRST(marker):
			marker, err = readMarker(r, &buf)
		case marker == markerSOS:
			if err = readSegment(r, &buf); err == nil {
				marker, err = scanEntropy(r, &buf)
			}
		default:
			if err = readSegment(r, &buf); err == nil {
				marker, err = readMarker(r, &buf)
			}
		}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("truncated jpeg frame: %w", io.EOF)
	}
	return nil, err
}

func skipToSOI(r *bufio.Reader) error {
	var prev byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if prev == 0xFF && b == markerSOI {
			return nil
		}
		prev = b
	}
}

func readMarker(r *bufio.Reader, buf *[]byte) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != 0xFF {
		return 0, fmt.Errorf("jpeg: expected marker, got 0x%02x", b)
	}
	for b == 0xFF {
		if b, err = r.ReadByte(); err != nil {
			return 0, err
		}
	}
	*buf = append(*buf, 0xFF, b)
	return b, nil
}

func readSegment(r *bufio.Reader, buf *[]byte) error {
	var lenBytes [2]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint16(lenBytes[:]))
	if n < 2 {
		return fmt.Errorf("jpeg: bad segment length %d", n)
	}
	*buf = append(*buf, lenBytes[:]...)
	start := len(*buf)
	*buf = append(*buf, make([]byte, n-2)...)
	_, err := io.ReadFull(r, (*buf)[start:])
	return err
}

// scanEntropy consome os dados comprimidos após SOS e devolve o marcador que
// os encerra (já anexado em buf).
func scanEntropy(r *bufio.Reader, buf *[]byte) (byte, error) {
	for {
		chunk, err := r.ReadSlice(0xFF)
		*buf = append(*buf, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			return 0, err
		}
		next, err := r.ReadByte()
		for err == nil && next == 0xFF {
			next, err = r.ReadByte()
		}
		if err != nil {
			return 0, err
		}
		*buf = append(*buf, next)
		if next == 0x00 || isRST(next) {
			continue
		}
		return next, nil
	}
}
