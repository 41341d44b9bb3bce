// Package auth переносит учётные данные вызывающего явно, параметром,
// от входящего запроса до исходящих вызовов зависимостей.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrMissingCredential во входящем запросе нет bearer-токена
var ErrMissingCredential = errors.New("missing bearer credential")

const bearerPrefix = "Bearer "

// Credential непрозрачный bearer-токен вызывающего. Сервис никогда не
// выпускает собственные токены, только пересылает полученный.
type Credential struct {
	Token string
}

// Empty нет токена
func (c Credential) Empty() bool { return c.Token == "" }

// Header значение заголовка Authorization
func (c Credential) Header() string { return bearerPrefix + c.Token }

// Attach добавляет токен в исходящий запрос без изменений
func (c Credential) Attach(req *http.Request) {
	if c.Empty() {
		return
	}
	req.Header.Set("Authorization", c.Header())
}

// FromAuthorization извлекает токен из заголовка Authorization
func FromAuthorization(header string) (Credential, error) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return Credential{}, ErrMissingCredential
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return Credential{}, ErrMissingCredential
	}
	return Credential{Token: token}, nil
}

// FromRequest извлекает токен из входящего HTTP-запроса
func FromRequest(r *http.Request) (Credential, error) {
	return FromAuthorization(r.Header.Get("Authorization"))
}

// Identity вызывающий, извлечённый из проверенного токена
type Identity struct {
	UserID int64    `json:"userId"`
	Email  string   `json:"email,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}
