package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/muesli/termenv"
	qrcode "github.com/skip2/go-qrcode"

	"wgbox/internal/command"
)

// QRRenderer turns a client config into a QR code on a terminal and as a PNG.
type QRRenderer interface {
	Terminal(ctx context.Context, confPath string, w io.Writer) error
	PNG(ctx context.Context, confPath, pngPath string) error
}

// Qrencode shells out to qrencode(1). A missing binary is logged and skipped;
// any other failure is returned.
type Qrencode struct {
	Runner command.Runner
	// Format overrides the terminal output type (ansiutf8 or utf8). When
	// empty it is chosen from the terminal's capabilities.
	Format string
}

func (q Qrencode) Terminal(ctx context.Context, confPath string, w io.Writer) error {
	format := q.Format
	if format == "" {
		format = terminalFormat(w)
	}
	res, err := q.Runner.Run(ctx, command.Cmd{Name: "qrencode", Args: []string{"-t", format, "-r", confPath}})
	if err != nil {
		if command.IsNotFound(err) {
			slog.Warn("qrencode not found, skipping terminal qr")
			return nil
		}
		return fmt.Errorf("render terminal qr: %w", err)
	}
	_, err = w.Write(res.Stdout)
	return err
}

func (q Qrencode) PNG(ctx context.Context, confPath, pngPath string) error {
	_, err := q.Runner.Run(ctx, command.Cmd{Name: "qrencode", Args: []string{"-o", pngPath, "-r", confPath}})
	if err != nil {
		if command.IsNotFound(err) {
			slog.Warn("qrencode not found, skipping png qr")
			return nil
		}
		return fmt.Errorf("render png qr: %w", err)
	}
	return nil
}

func terminalFormat(w io.Writer) string {
	if termenv.NewOutput(w).Profile == termenv.Ascii {
		return "utf8"
	}
	return "ansiutf8"
}

// BuiltinQR renders in-process with go-qrcode.
type BuiltinQR struct {
	Writer *Writer
}

func (b BuiltinQR) encode(confPath string) (*qrcode.QRCode, error) {
	data, err := os.ReadFile(confPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", confPath, err)
	}
	code, err := qrcode.New(string(data), qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return code, nil
}

func (b BuiltinQR) Terminal(_ context.Context, confPath string, w io.Writer) error {
	code, err := b.encode(confPath)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, code.ToSmallString(false))
	return err
}

func (b BuiltinQR) PNG(_ context.Context, confPath, pngPath string) error {
	code, err := b.encode(confPath)
	if err != nil {
		return err
	}
	png, err := code.PNG(512)
	if err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return b.Writer.WriteFile(pngPath, png, 0o600)
}

// NoQR disables QR output.
type NoQR struct{}

func (NoQR) Terminal(context.Context, string, io.Writer) error { return nil }
func (NoQR) PNG(context.Context, string, string) error         { return nil }
