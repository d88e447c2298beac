package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/domain/chat"
	"github.com/parley-chat/parley/internal/domain/chat/models"
)

type fakeEngine struct {
	extract func(ctx context.Context, data []byte) (string, error)
}

func (f fakeEngine) Extract(ctx context.Context, data []byte) (string, error) {
	return f.extract(ctx, data)
}

func TestRegistryExtract(t *testing.T) {
	t.Run("dispatches by declared kind", func(t *testing.T) {
		registry := NewRegistry(time.Second)
		registry.Register(models.KindText, fakeEngine{
			extract: func(_ context.Context, data []byte) (string, error) {
				return "text:" + string(data), nil
			},
		})
		registry.Register(models.KindPDF, fakeEngine{
			extract: func(_ context.Context, data []byte) (string, error) {
				return "pdf:" + string(data), nil
			},
		})

		att := models.NewAttachment("notes.pdf", 3)
		result := registry.Extract(context.Background(), att, []byte("abc"))

		if result.Failed() {
			t.Fatalf("Unexpected failure: %s", result.Err)
		}
		if result.Text != "pdf:abc" {
			t.Errorf("Expected pdf engine output, got %q", result.Text)
		}
		if result.AttachmentID != att.ID || result.Name != att.Name {
			t.Error("Result not tagged with attachment identity")
		}
	})

	t.Run("unsupported kind fails fast", func(t *testing.T) {
		registry := NewRegistry(time.Second)

		att := models.NewAttachment("archive.zip", 10)
		result := registry.Extract(context.Background(), att, []byte("x"))

		if !result.Failed() {
			t.Fatal("Expected failure for unsupported kind")
		}
		if !strings.Contains(result.Err, chat.ErrUnsupportedKind.Error()) {
			t.Errorf("Expected unsupported kind error, got %q", result.Err)
		}
	})

	t.Run("empty output is success with empty flag", func(t *testing.T) {
		registry := NewRegistry(time.Second)
		registry.Register(models.KindImage, fakeEngine{
			extract: func(_ context.Context, _ []byte) (string, error) {
				return "   \n", nil
			},
		})

		att := models.NewAttachment("blank.png", 5)
		result := registry.Extract(context.Background(), att, []byte("img"))

		if result.Failed() {
			t.Fatalf("Empty output must not be a failure, got %s", result.Err)
		}
		if !result.Empty {
			t.Error("Expected empty flag on whitespace-only output")
		}
	})

	t.Run("slow engine times out", func(t *testing.T) {
		registry := NewRegistry(20 * time.Millisecond)
		registry.Register(models.KindText, fakeEngine{
			extract: func(ctx context.Context, _ []byte) (string, error) {
				select {
				case <-time.After(5 * time.Second):
					return "too late", nil
				case <-ctx.Done():
					return "", ctx.Err()
				}
			},
		})

		att := models.NewAttachment("slow.txt", 4)
		start := time.Now()
		result := registry.Extract(context.Background(), att, []byte("data"))

		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("Extract did not respect timeout, took %s", elapsed)
		}
		if !result.Failed() {
			t.Fatal("Expected timeout failure")
		}
		if result.Err != chat.ErrExtractionTimeout.Error() {
			t.Errorf("Expected extraction timeout error, got %q", result.Err)
		}
	})

	t.Run("engine error is folded into the result", func(t *testing.T) {
		registry := NewRegistry(time.Second)
		registry.Register(models.KindImage, fakeEngine{
			extract: func(_ context.Context, _ []byte) (string, error) {
				return "", errors.New("annotate quota exceeded")
			},
		})

		att := models.NewAttachment("photo.jpg", 9)
		result := registry.Extract(context.Background(), att, []byte("img"))

		if !result.Failed() {
			t.Fatal("Expected failure result")
		}
		if result.Err != "annotate quota exceeded" {
			t.Errorf("Expected engine error in result, got %q", result.Err)
		}
	})
}

func TestTextEngine(t *testing.T) {
	engine := NewTextEngine()

	t.Run("strips BOM and normalizes line endings", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("line one\r\nline two\r\n")...)
		text, err := engine.Extract(context.Background(), data)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if text != "line one\nline two\n" {
			t.Errorf("Unexpected normalized text %q", text)
		}
	})

	t.Run("rejects invalid UTF-8", func(t *testing.T) {
		if _, err := engine.Extract(context.Background(), []byte{0xFF, 0xFE, 0x41}); err == nil {
			t.Error("Expected error for invalid UTF-8")
		}
	})
}

func TestPDFEngineRejectsGarbage(t *testing.T) {
	engine := NewPDFEngine()
	if _, err := engine.Extract(context.Background(), []byte("definitely not a pdf")); err == nil {
		t.Error("Expected error for non-PDF bytes")
	}
}

func TestVisionEngineUnavailableWithoutCredentials(t *testing.T) {
	engine := &VisionEngine{}
	_, err := engine.Extract(context.Background(), []byte("img"))
	if !errors.Is(err, chat.ErrEngineUnavailable) {
		t.Errorf("Expected engine unavailable error, got %v", err)
	}
}
