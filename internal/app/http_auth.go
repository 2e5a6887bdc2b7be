package app

import (
	"net/http"

	"go.uber.org/zap"

	"kampus/api/internal/authpw"
)

// publicRoutes are served without a session, keyed by "METHOD /path".
func (s *HTTPServer) publicRoutes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"POST /api/auth/signup":                 s.handleSignUp,
		"POST /api/auth/signin":                 s.handleSignIn,
		"POST /api/auth/verify-email":           s.handleVerifyEmail,
		"POST /api/auth/reset-password/request": s.handleRequestReset,
		"POST /api/auth/reset-password":         s.handleResetPassword,
		"GET /api/session":                      s.handleSessionInfo,
		"POST /api/session/refresh":             s.handleRefresh,
		"POST /api/session/logout":              s.handleLogout,
	}
}

// readBody decodes a JSON body into target and answers 400 on failure.
func readBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
		Unit        string `json:"unit"`
	}
	if !readBody(w, r, &body) {
		return
	}
	resp, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
		Unit:        body.Unit,
	})
	if err != nil {
		respond(w, 0, nil, err)
		return
	}

	payload := map[string]any{"userId": resp.UserID, "role": resp.Role}
	if s.service.SMTPConfigured() {
		payload["message"] = "Hesabınızı doğrulamak için e-postanızı kontrol edin."
	} else {
		// Without SMTP the code is handed back so the account can still be verified.
		payload["devVerificationToken"] = resp.VerificationToken
		payload["message"] = "Hesap oluşturuldu. Devam etmek için e-postanızı doğrulayın."
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !readBody(w, r, &body) {
		return
	}

	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{Email: body.Email, Password: body.Password})
	if err != nil {
		if status, _, _, _ := mapError(err); status == http.StatusInternalServerError {
			s.logger.Error("sign in failed", zap.Error(err))
		}
		respond(w, 0, nil, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if !readBody(w, r, &body) {
		return
	}
	err := s.service.AuthPasswordService().VerifyEmail(r.Context(), body.Token)
	respond(w, http.StatusOK, map[string]string{"message": "E-posta adresiniz doğrulandı."}, err)
}

func (s *HTTPServer) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !readBody(w, r, &body) {
		return
	}

	// Unknown addresses get the same answer so accounts cannot be enumerated.
	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.logger.Error("password reset request failed", zap.Error(err))
	}
	payload := map[string]any{"message": "Hesap varsa sıfırlama e-postası gönderildi."}
	if token != "" && !s.service.SMTPConfigured() {
		payload["devResetToken"] = token
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if !readBody(w, r, &body) {
		return
	}
	err := s.service.ResetPassword(r.Context(), authpw.ResetPasswordRequest{Token: body.Token, NewPassword: body.NewPassword})
	respond(w, http.StatusOK, map[string]string{"message": "Şifreniz güncellendi."}, err)
}

func (s *HTTPServer) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	anonymous := map[string]any{"authenticated": false, "userName": nil}
	token := bearerToken(r)
	if token == "" {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusOK, anonymous)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"userName":      session.UserName,
		"userId":        session.UserID,
		"email":         session.Email,
		"unit":          session.Unit,
		"role":          session.Role,
	})
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !readBody(w, r, &body) {
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

// handleLogout always succeeds; whatever token it can identify is revoked.
func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var session Session
	if token := bearerToken(r); token != "" {
		if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = parsed
		}
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = decodeBody(r, &body)
	if err := s.service.Logout(r.Context(), session, body.RefreshToken); err != nil {
		s.logger.Warn("logout cleanup failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
