// Package token issues short-lived LiveKit room credentials for the widget.
package token

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/livekit/protocol/auth"

	"github.com/voicelab/voice-widget/backend/internal/config"
	"github.com/voicelab/voice-widget/backend/internal/fault"
)

// TTL is how long an issued credential stays valid.
const TTL = 10 * time.Minute

// identifierPattern 限制房间名与用户名的字符集，防止注入下游凭证请求。
var identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Credential is a signed, room-scoped session credential.
type Credential struct {
	Token     string        `json:"token"`
	URL       string        `json:"url"`
	ExpiresIn time.Duration `json:"expiresIn"`
}

// metadata rides inside the token as an opaque payload.
type metadata struct {
	Room     string    `json:"room"`
	IssuedAt time.Time `json:"issuedAt"`
}

// Issuer mints access tokens against the configured LiveKit deployment.
type Issuer struct {
	cfg config.LiveKitConfig
	now func() time.Time
}

// NewIssuer 创建凭证签发器。
func NewIssuer(cfg config.LiveKitConfig) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// ValidateIdentifier rejects names outside the letters/digits/hyphen/underscore charset.
func ValidateIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Issue validates the identifiers and returns a signed credential scoped to
// roomName with publish, subscribe and data-publish grants.
func (i *Issuer) Issue(_ context.Context, roomName, participantName string) (*Credential, error) {
	if !ValidateIdentifier(roomName) {
		return nil, fault.Validation("roomName must contain only letters, digits, hyphens and underscores")
	}
	if !ValidateIdentifier(participantName) {
		return nil, fault.Validation("participantName must contain only letters, digits, hyphens and underscores")
	}

	if !i.cfg.HasCredentials() {
		return nil, fault.Config("LiveKit API key/secret not configured")
	}
	if i.cfg.URL == "" {
		return nil, fault.Config("LiveKit URL not configured")
	}
	if !strings.HasPrefix(i.cfg.URL, "ws://") && !strings.HasPrefix(i.cfg.URL, "wss://") {
		return nil, fault.Config("LiveKit URL must be a ws:// or wss:// endpoint")
	}

	canPublish := true
	canSubscribe := true
	canPublishData := true
	grant := &auth.VideoGrant{
		RoomJoin:       true,
		Room:           roomName,
		CanPublish:     &canPublish,
		CanSubscribe:   &canSubscribe,
		CanPublishData: &canPublishData,
	}

	meta, err := json.Marshal(metadata{Room: roomName, IssuedAt: i.now().UTC()})
	if err != nil {
		return nil, fault.Wrap(fault.KindUnknown, "encode token metadata", err)
	}

	at := auth.NewAccessToken(i.cfg.APIKey, i.cfg.APISecret).
		SetVideoGrant(grant).
		SetIdentity(participantName).
		SetValidFor(TTL).
		SetMetadata(string(meta))

	jwt, err := at.ToJWT()
	if err != nil {
		return nil, fault.Wrap(fault.KindConfig, "sign access token", err)
	}

	log.Printf("[token] issued credential room=%s participant=%s ttl=%s", roomName, participantName, TTL)

	return &Credential{Token: jwt, URL: i.cfg.URL, ExpiresIn: TTL}, nil
}
