package usecase

import (
	"crypto/rsa"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"chatsync/pkg/errors"
	"chatsync/pkg/logger"
)

const (
	publicJitsiDomain = "meet.jit.si"
	jaasTokenLifetime = 24 * time.Hour
)

type VideoTokenRequest struct {
	RoomName    string
	DisplayName string
	UserEmail   string
	IsModerator bool
}

type VideoTokenResult struct {
	Token   string `json:"token,omitempty"`
	Domain  string `json:"domain"`
	UseJaaS bool   `json:"useJaaS"`
}

// VideoTokenUseCase issues JaaS meeting tokens. Without credentials it
// points clients at the public Jitsi deployment instead.
type VideoTokenUseCase struct {
	appID  string
	keyID  string
	domain string
	key    *rsa.PrivateKey
	now    func() time.Time
}

func NewVideoTokenUseCase(appID, keyID, privateKeyPath, domain string) (*VideoTokenUseCase, error) {
	uc := &VideoTokenUseCase{
		appID:  appID,
		keyID:  keyID,
		domain: domain,
		now:    time.Now,
	}
	if appID == "" || keyID == "" || privateKeyPath == "" {
		logger.Info("JaaS not configured, video calls use %s", publicJitsiDomain)
		return uc, nil
	}

	pem, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, errors.Internal("Failed to read JaaS private key", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, errors.Internal("Failed to parse JaaS private key", err)
	}
	uc.key = key
	return uc, nil
}

func (uc *VideoTokenUseCase) Configured() bool {
	return uc.key != nil
}

// GenerateToken signs an RS256 token valid for every room of the app.
func (uc *VideoTokenUseCase) GenerateToken(req VideoTokenRequest) (*VideoTokenResult, error) {
	if !uc.Configured() {
		return &VideoTokenResult{Domain: publicJitsiDomain}, nil
	}
	if strings.TrimSpace(req.RoomName) == "" || strings.TrimSpace(req.DisplayName) == "" {
		return nil, errors.BadRequest("Room name and display name are required", nil)
	}

	userID := req.UserEmail
	if userID == "" {
		userID = "user_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:9]
	}

	now := uc.now()
	claims := jwt.MapClaims{
		"iss":  "chat",
		"aud":  "jitsi",
		"sub":  uc.appID,
		"room": "*",
		"nbf":  now.Unix(),
		"exp":  now.Add(jaasTokenLifetime).Unix(),
		"context": map[string]interface{}{
			"user": map[string]interface{}{
				"id":        userID,
				"name":      req.DisplayName,
				"email":     req.UserEmail,
				"moderator": req.IsModerator,
			},
			"features": map[string]interface{}{
				"livestreaming": req.IsModerator,
				"recording":     req.IsModerator,
				"transcription": req.IsModerator,
				"outbound-call": false,
			},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = uc.keyID

	signed, err := token.SignedString(uc.key)
	if err != nil {
		return nil, errors.Internal("Failed to generate JaaS authentication token", err)
	}

	return &VideoTokenResult{Token: signed, Domain: uc.domain, UseJaaS: true}, nil
}
