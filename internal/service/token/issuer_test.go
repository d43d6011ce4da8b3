package token

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voicelab/voice-widget/backend/internal/config"
	"github.com/voicelab/voice-widget/backend/internal/fault"
)

func testConfig() config.LiveKitConfig {
	return config.LiveKitConfig{
		APIKey:    "APIxxxxxxxxxxxx",
		APISecret: "secretsecretsecretsecretsecret12",
		URL:       "wss://widget.livekit.example",
	}
}

func TestIssueValidIdentifiers(t *testing.T) {
	issuer := NewIssuer(testConfig())

	cred, err := issuer.Issue(context.Background(), "abc-1", "bob_2")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}
	if cred.Token == "" {
		t.Fatal("expected non-empty token")
	}
	if cred.URL != "wss://widget.livekit.example" {
		t.Fatalf("unexpected url: %s", cred.URL)
	}
	if cred.ExpiresIn != TTL {
		t.Fatalf("expiresIn got %v want %v", cred.ExpiresIn, TTL)
	}
}

func TestIssueEmbedsRoomMetadata(t *testing.T) {
	issuer := NewIssuer(testConfig())
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return issued }

	cred, err := issuer.Issue(context.Background(), "landing-room", "visitor_7")
	if err != nil {
		t.Fatalf("Issue err: %v", err)
	}

	parsed, err := jwt.Parse(cred.Token, func(*jwt.Token) (any, error) {
		return []byte(testConfig().APISecret), nil
	})
	if err != nil {
		t.Fatalf("parse jwt: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatal("unexpected claims type")
	}

	if sub, _ := claims["sub"].(string); sub != "visitor_7" {
		t.Fatalf("identity got %q want visitor_7", sub)
	}
	meta, _ := claims["metadata"].(string)
	if meta == "" {
		t.Fatal("expected metadata claim")
	}
	for _, want := range []string{`"room":"landing-room"`, `"issuedAt":"2026-03-01T12:00:00Z"`} {
		if !strings.Contains(meta, want) {
			t.Fatalf("metadata %q missing %q", meta, want)
		}
	}

	exp, _ := claims["exp"].(float64)
	if int64(exp) <= time.Now().Unix() {
		t.Fatal("token already expired")
	}

	video, ok := claims["video"].(map[string]any)
	if !ok {
		t.Fatal("expected video grant")
	}
	if room, _ := video["room"].(string); room != "landing-room" {
		t.Fatalf("grant room got %q want landing-room", room)
	}
	for _, grant := range []string{"canPublish", "canSubscribe", "canPublishData"} {
		if allowed, _ := video[grant].(bool); !allowed {
			t.Fatalf("grant %s not set", grant)
		}
	}
}

func TestIssueRejectsInvalidIdentifiers(t *testing.T) {
	issuer := NewIssuer(testConfig())

	cases := []struct {
		room, participant string
	}{
		{"abc 1", "bob"},
		{"room/../../etc", "bob"},
		{"", "bob"},
		{"room", "bob!"},
		{"room", ""},
	}
	for _, tc := range cases {
		_, err := issuer.Issue(context.Background(), tc.room, tc.participant)
		if err == nil {
			t.Fatalf("expected error for room=%q participant=%q", tc.room, tc.participant)
		}
		var fe *fault.Error
		if !errors.As(err, &fe) || fe.Kind != fault.KindValidation {
			t.Fatalf("expected validation error, got %v", err)
		}
	}
}

func TestIssueMissingCredentials(t *testing.T) {
	issuer := NewIssuer(config.LiveKitConfig{URL: "wss://widget.livekit.example"})

	_, err := issuer.Issue(context.Background(), "room", "bob")
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestIssueMalformedURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "https://widget.livekit.example"
	issuer := NewIssuer(cfg)

	_, err := issuer.Issue(context.Background(), "room", "bob")
	var fe *fault.Error
	if !errors.As(err, &fe) || fe.Kind != fault.KindConfig {
		t.Fatalf("expected config error for non-ws url, got %v", err)
	}
}
