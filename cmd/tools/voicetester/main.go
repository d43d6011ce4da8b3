// voicetester exercises a running widget backend from the command line:
// post a recorded audio file through the chat pipeline, or request a
// session credential from the token endpoint.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/voicelab/voice-widget/backend/pkg/widget"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env file, using system environment: %v", err)
	}

	mode := flag.String("mode", "", "test mode: chat or token")
	server := flag.String("server", "http://localhost:8080", "widget backend base URL")
	audioPath := flag.String("audio", "", "input audio file for -mode=chat")
	outputPath := flag.String("out", "", "output path for the assistant reply audio (default reply.mp3)")
	room := flag.String("room", "landing-page", "room name for -mode=token")
	participant := flag.String("participant", "", "participant name for -mode=token (default generated)")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if *mode != "chat" && *mode != "token" {
		flag.Usage()
		log.Fatal("specify -mode=chat or -mode=token")
	}

	client := widget.NewAPIClient(*server, *timeout)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "chat":
		runChat(ctx, client, *audioPath, *outputPath)
	case "token":
		runToken(ctx, client, *room, *participant)
	}
}

func runChat(ctx context.Context, client *widget.APIClient, audioPath, outputPath string) {
	if audioPath == "" {
		log.Fatal("-audio is required for -mode=chat")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatalf("read audio file: %v", err)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(audioPath))
	if !strings.HasPrefix(mimeType, "audio/") {
		mimeType = "audio/wav"
	}
	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(audio)

	start := time.Now()
	result, err := client.Process(ctx, dataURI)
	if err != nil {
		log.Fatalf("chat request failed: %v", err)
	}
	log.Printf("pipeline round trip took %s", time.Since(start).Round(time.Millisecond))

	fmt.Printf("transcription: %q\n", result.Transcription)
	fmt.Printf("assistant:     %q\n", result.Text)

	if result.AudioDataURI == "" {
		fmt.Println("no reply audio (degraded or short-circuited)")
		return
	}

	payload := result.AudioDataURI[strings.Index(result.AudioDataURI, ",")+1:]
	replyAudio, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		log.Fatalf("decode reply audio: %v", err)
	}

	if outputPath == "" {
		outputPath = "reply.mp3"
	}
	if err := os.WriteFile(outputPath, replyAudio, 0o644); err != nil {
		log.Fatalf("write reply audio: %v", err)
	}
	fmt.Printf("reply audio:   %s (%d bytes)\n", outputPath, len(replyAudio))
}

func runToken(ctx context.Context, client *widget.APIClient, room, participant string) {
	if participant == "" {
		participant = fmt.Sprintf("tester-%d", time.Now().Unix())
	}

	cred, err := client.Issue(ctx, room, participant)
	if err != nil {
		log.Fatalf("token request failed: %v", err)
	}

	out, _ := json.MarshalIndent(cred, "", "  ")
	fmt.Println(string(out))
}
