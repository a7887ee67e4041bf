package credential

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ppiankov/supaspectre/internal/models"
)

// DecodeClaims returns the unverified payload claims of a JWT-shaped token.
// Signatures are never checked.
func DecodeClaims(token string) jwt.MapClaims {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		return claims
	}
	// Tokens with padded or non-JSON headers still carry a readable payload.
	payload, ok := decodePayload(token)
	if !ok {
		return nil
	}
	return jwt.MapClaims(payload)
}

// InferRole guesses the database role a token acts as.
func InferRole(claims jwt.MapClaims) string {
	if claims == nil {
		return ""
	}
	if role, ok := claims["role"].(string); ok && strings.TrimSpace(role) != "" {
		return strings.TrimSpace(role)
	}
	if meta, ok := claims["app_metadata"].(map[string]any); ok {
		if role, ok := meta["role"].(string); ok && strings.TrimSpace(role) != "" {
			return strings.TrimSpace(role)
		}
	}
	switch aud := claims["aud"].(type) {
	case []any:
		if containsString(aud, models.RoleServiceRole) {
			return models.RoleServiceRole
		}
		if containsString(aud, models.RoleAnon) {
			return models.RoleAnon
		}
	case string:
		switch aud {
		case models.RoleAuthenticated, models.RoleAnon:
			return models.RoleAnon
		case models.RoleServiceRole:
			return models.RoleServiceRole
		}
	}
	return ""
}

// SummarizeClaims keeps the claims worth showing in a report.
func SummarizeClaims(claims jwt.MapClaims) *models.ClaimsSummary {
	if claims == nil {
		return nil
	}
	summary := &models.ClaimsSummary{}
	summary.Role, _ = claims["role"].(string)
	summary.Ref, _ = claims["ref"].(string)
	summary.Iss, _ = claims["iss"].(string)
	summary.Sub, _ = claims["sub"].(string)
	switch aud := claims["aud"].(type) {
	case string, []any:
		summary.Aud = aud
	}
	summary.Exp = numericClaim(claims["exp"])
	summary.Iat = numericClaim(claims["iat"])
	return summary
}

func numericClaim(v any) *int64 {
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int64(f)
	return &n
}

func containsString(values []any, want string) bool {
	for _, v := range values {
		if s, ok := v.(string); ok && s == want {
			return true
		}
	}
	return false
}
