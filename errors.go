/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/dragonseeker/games/dragonseeker"
)

var (
	errUnauthorized  = errors.New("invalid or expired authentication token")
	errTokenMismatch = errors.New("authentication token does not match player")
	errBadRequest    = errors.New("malformed request")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

// gameLogger adapts logf for the game package.
func gameLogger(cfg *Config) func(format string, args ...any) {
	return func(format string, args ...any) {
		logf(cfg, format, args...)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// statusFor maps an error to its HTTP status and a machine-readable kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errTokenMismatch):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	}

	kind := dragonseeker.KindOf(err)
	switch kind {
	case dragonseeker.KindNotFound:
		return http.StatusNotFound, kind.String()
	case dragonseeker.KindForbidden:
		return http.StatusForbidden, kind.String()
	case dragonseeker.KindInvalidPhase:
		return http.StatusConflict, kind.String()
	case dragonseeker.KindValidation, dragonseeker.KindInsufficientPlayers:
		return http.StatusBadRequest, kind.String()
	default:
		return http.StatusInternalServerError, kind.String()
	}
}

func serveError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	status, kind := statusFor(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logf(cfg, "ERROR: %s %s from %s: %v", r.Method, r.URL.Path, realIP(r), err)
		msg = "An error has occurred. Please try again."
	}

	writeJSON(cfg, w, r, status, errorResponse{Error: msg, Kind: kind})
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
