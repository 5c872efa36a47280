package usecase

// TokenVerifier validates session tokens issued by AuthUseCase.
type TokenVerifier interface {
	VerifyToken(token string) (*TokenClaims, error)
}

