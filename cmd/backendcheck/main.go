package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/park285/chess-vision/internal/backend"
	"github.com/park285/chess-vision/internal/board"
	"github.com/park285/chess-vision/internal/capture"
)

func main() {
	image := flag.String("image", "", "optional image file to run through detection")
	fen := flag.String("fen", board.StartFEN, "position to analyze")
	source := flag.String("source", os.Getenv("FRAME_SOURCE"), "optional frame source to grab one frame from")
	flag.Parse()

	baseURL := os.Getenv("BACKEND_URL")
	client := backend.NewClient(baseURL,
		backend.WithTimeout(8*time.Second),
		backend.WithHeaderProvider(backend.APIKeyHeader(os.Getenv("BACKEND_API_KEY"))),
	)
	log.Printf("backend: %s", client.BaseURL())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if h, err := client.Health(ctx); err != nil {
		log.Printf("/health error: %v", err)
	} else {
		log.Printf("/health ok: status=%s model_loaded=%v model=%s", h.Status, h.ModelLoaded, h.ModelPath)
	}

	if info, err := client.EngineInfo(ctx); err != nil {
		log.Printf("/api/engine-info error: %v", err)
	} else {
		log.Printf("/api/engine-info ok: engine=%v model=%v classes=%d", info.EngineAvailable, info.ModelLoaded, len(info.ClassNames))
	}

	if reply, err := client.AnalyzePosition(ctx, *fen); err != nil {
		log.Printf("/api/analyze-position error: %v", err)
	} else {
		log.Printf("/api/analyze-position ok: suggested=%s legal=%d game_over=%v", reply.SuggestedMove, len(reply.LegalMoves), reply.IsGameOver)
	}

	var name string
	var data []byte
	switch {
	case *image != "":
		b, err := os.ReadFile(*image)
		if err != nil {
			log.Fatalf("read image: %v", err)
		}
		name, data = *image, b
	case *source != "":
		src, err := capture.NewSource(*source)
		if err != nil {
			log.Fatalf("frame source: %v", err)
		}
		defer src.Close()
		frame, err := src.Grab(ctx)
		if err != nil {
			log.Printf("grab frame error: %v", err)
			return
		}
		name, data = frame.Filename, frame.Data
	default:
		log.Println("no image or frame source; skipping detection check")
		return
	}

	reply, err := client.DetectPosition(ctx, name, data)
	if err != nil {
		log.Printf("/api/detect-chess-position error: %v", err)
		return
	}
	log.Printf("/api/detect-chess-position ok: success=%v fen=%s confidence=%.2f", reply.Success, reply.FEN, reply.Confidence)
}
