/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Seednode/dragonseeker/games/dragonseeker"
	"github.com/gorilla/websocket"
)

type testServer struct {
	*httptest.Server
	gs *gameServer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &Config{
		finishedTimeout: 10 * time.Minute,
		port:            8080,
		secret:          "test secret",
		sessionTimeout:  time.Hour,
		tokenTTL:        time.Hour,
	}

	mux, gs, err := newRouter(cfg, make(chan error, 64))
	if err != nil {
		t.Fatalf("newRouter: %v", err)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, gs: gs}
}

type seat struct {
	id    string
	token string
}

// call sends body as JSON and decodes the response into out when non-nil.
func (ts *testServer) call(t *testing.T, method, path string, who *seat, body, out any) int {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	url := ts.URL + path
	if who != nil {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		url += sep + "player_id=" + who.id
	}

	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if who != nil && who.token != "" {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}

	return resp.StatusCode
}

func (ts *testServer) create(t *testing.T, name string) (string, *seat) {
	t.Helper()

	var resp joinResponse
	if code := ts.call(t, "POST", "/api/games", nil, nameRequest{Name: name}, &resp); code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if !resp.IsHost || resp.Token == "" || !strings.HasSuffix(resp.GameURL, "/game/"+resp.GameID) {
		t.Fatalf("create response = %+v", resp)
	}

	return resp.GameID, &seat{id: resp.PlayerID, token: resp.Token}
}

func (ts *testServer) join(t *testing.T, gameID, name string) *seat {
	t.Helper()

	var resp joinResponse
	if code := ts.call(t, "POST", "/api/games/"+gameID+"/join", nil, nameRequest{Name: name}, &resp); code != http.StatusCreated {
		t.Fatalf("join %s: status %d", name, code)
	}

	return &seat{id: resp.PlayerID, token: resp.Token}
}

func (ts *testServer) view(t *testing.T, gameID string, who *seat) dragonseeker.PlayerView {
	t.Helper()

	var v dragonseeker.PlayerView
	if code := ts.call(t, "GET", "/api/games/"+gameID+"/state", who, nil, &v); code != http.StatusOK {
		t.Fatalf("state: status %d", code)
	}

	return v
}

func TestGameFlow(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")
	seats := []*seat{host, ts.join(t, gameID, "Bob"), ts.join(t, gameID, "Carol"), ts.join(t, gameID, "Dave")}

	var st statusResponse
	if code := ts.call(t, "POST", "/api/games/"+gameID+"/start", host, nil, &st); code != http.StatusOK || st.Status != "started" {
		t.Fatalf("start: status %d, %+v", code, st)
	}

	var dragon *seat
	var common string
	for _, s := range seats {
		v := ts.view(t, gameID, s)

		switch v.Role {
		case dragonseeker.RoleDragon:
			if dragon != nil {
				t.Fatal("two dragons dealt")
			}
			if v.Word != "" || v.KnowsWord {
				t.Fatalf("dragon sees a word: %+v", v)
			}
			dragon = s
		case dragonseeker.RoleVillager:
			common = v.Word
		}

		if v.State.CommonWord != "" || v.State.SpecialWord != "" {
			t.Fatal("words published before the game finished")
		}
		for _, p := range v.State.Players {
			if p.Role != "" {
				t.Fatalf("role of %s published while playing", p.Name)
			}
		}
	}
	if dragon == nil {
		t.Fatal("no dragon dealt")
	}

	if code := ts.call(t, "POST", "/api/games/"+gameID+"/start-voting", host, nil, nil); code != http.StatusOK {
		t.Fatalf("start-voting: status %d", code)
	}

	var vr voteResponse
	for i, s := range seats {
		if code := ts.call(t, "POST", "/api/games/"+gameID+"/vote", s, voteRequest{TargetID: dragon.id}, &vr); code != http.StatusOK {
			t.Fatalf("vote %d: status %d", i, code)
		}
		if i < len(seats)-1 && (vr.Status != "vote_submitted" || vr.VotesCast != i+1) {
			t.Fatalf("vote %d: %+v", i, vr)
		}
	}
	if vr.Status != "vote_complete" || vr.Eliminated != dragon.id || vr.Phase != dragonseeker.PhaseDragonGuess {
		t.Fatalf("final vote = %+v", vr)
	}

	var gr guessResponse
	if code := ts.call(t, "POST", "/api/games/"+gameID+"/guess", dragon, guessRequest{Guess: "definitely not it"}, &gr); code != http.StatusOK {
		t.Fatalf("guess: status %d", code)
	}
	if gr.Correct || gr.Winner != dragonseeker.WinnerVillagers {
		t.Fatalf("guess = %+v", gr)
	}

	v := ts.view(t, gameID, host)
	if v.State.Phase != dragonseeker.PhaseFinished || v.State.Winner != dragonseeker.WinnerVillagers {
		t.Fatalf("final state = %+v", v.State)
	}
	if common != "" && v.State.CommonWord != common {
		t.Fatalf("revealed word %q, villagers had %q", v.State.CommonWord, common)
	}
	for _, p := range v.State.Players {
		if p.Role == "" {
			t.Fatalf("role of %s not revealed at the end", p.Name)
		}
	}
}

func TestAPIErrors(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")
	bob := ts.join(t, gameID, "Bob")

	stranger, _, err := ts.gs.tokens.issue("NOSUCHGM", host.id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		who    *seat
		body   any
		want   int
		kind   string
	}{
		{"no token", "POST", "/start", &seat{id: host.id}, nil, http.StatusUnauthorized, "unauthorized"},
		{"bad token", "POST", "/start", &seat{id: host.id, token: "nope"}, nil, http.StatusUnauthorized, "unauthorized"},
		{"someone else's token", "POST", "/start", &seat{id: host.id, token: bob.token}, nil, http.StatusForbidden, "forbidden"},
		{"not host", "POST", "/start", bob, nil, http.StatusForbidden, "forbidden"},
		{"too few players", "POST", "/start", host, nil, http.StatusBadRequest, "insufficient_players"},
		{"vote in lobby", "POST", "/vote", host, voteRequest{TargetID: bob.id}, http.StatusConflict, "invalid_phase"},
		{"timer out of range", "POST", "/timer", host, timerRequest{TimerSeconds: intPtr(29)}, http.StatusBadRequest, "validation_error"},
		{"malformed body", "POST", "/timer", host, "{", http.StatusBadRequest, "bad_request"},
		{"duplicate name", "POST", "/join", nil, nameRequest{Name: "bob"}, http.StatusBadRequest, "validation_error"},
		{"empty name", "POST", "/join", nil, nameRequest{Name: "  "}, http.StatusBadRequest, "validation_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var er errorResponse
			code := ts.call(t, tt.method, "/api/games/"+gameID+tt.path, tt.who, tt.body, &er)
			if code != tt.want || er.Kind != tt.kind {
				t.Fatalf("status %d kind %q (%s), want %d %q", code, er.Kind, er.Error, tt.want, tt.kind)
			}
		})
	}

	t.Run("unknown game", func(t *testing.T) {
		var er errorResponse
		code := ts.call(t, "GET", "/api/games/NOSUCHGM/state", &seat{id: host.id, token: stranger}, nil, &er)
		if code != http.StatusNotFound || er.Kind != "not_found" {
			t.Fatalf("status %d kind %q", code, er.Kind)
		}
	})

	t.Run("missing player id", func(t *testing.T) {
		var er errorResponse
		if code := ts.call(t, "GET", "/api/games/"+gameID+"/state", nil, nil, &er); code != http.StatusBadRequest {
			t.Fatalf("status %d", code)
		}
	})
}

func TestRejectedActionsDoNotBroadcast(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")
	bob := ts.join(t, gameID, "Bob")

	before := ts.view(t, gameID, host).State.Version

	ts.call(t, "POST", "/api/games/"+gameID+"/start", bob, nil, nil)
	ts.call(t, "POST", "/api/games/"+gameID+"/start", host, nil, nil)
	ts.call(t, "POST", "/api/games/"+gameID+"/timer", host, timerRequest{TimerSeconds: intPtr(500)}, nil)

	if after := ts.view(t, gameID, host).State.Version; after != before {
		t.Fatalf("version moved from %d to %d on rejected actions", before, after)
	}
}

func TestTimerPoll(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")
	ts.join(t, gameID, "Bob")
	ts.join(t, gameID, "Carol")

	if code := ts.call(t, "POST", "/api/games/"+gameID+"/timer", host, timerRequest{TimerSeconds: intPtr(60)}, nil); code != http.StatusOK {
		t.Fatalf("timer: status %d", code)
	}

	var tr timerResponse
	noToken := &seat{id: host.id}
	if code := ts.call(t, "GET", "/api/games/"+gameID+"/timer", noToken, nil, &tr); code != http.StatusOK {
		t.Fatalf("poll in lobby: status %d", code)
	}
	if tr.Running || tr.TimeRemaining != nil || tr.Phase != dragonseeker.PhaseLobby {
		t.Fatalf("poll in lobby = %+v", tr)
	}

	ts.call(t, "POST", "/api/games/"+gameID+"/start", host, nil, nil)
	ts.call(t, "POST", "/api/games/"+gameID+"/start-voting", host, nil, nil)

	if code := ts.call(t, "GET", "/api/games/"+gameID+"/timer", noToken, nil, &tr); code != http.StatusOK {
		t.Fatalf("poll while voting: status %d", code)
	}
	if !tr.Running || tr.TimeRemaining == nil || *tr.TimeRemaining < 59 || *tr.TimeRemaining > 60 || tr.Expired {
		t.Fatalf("poll while voting = %+v", tr)
	}

	var er errorResponse
	if code := ts.call(t, "GET", "/api/games/"+gameID+"/timer", &seat{id: "ghost"}, nil, &er); code != http.StatusNotFound {
		t.Fatalf("poll by unknown player: status %d", code)
	}
}

func TestWebsocketUpdates(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/" + gameID + "/ws?player_id=" + host.id

	header := http.Header{}
	header.Set("Authorization", "Bearer "+host.token)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("dial: status %d", resp.StatusCode)
	}

	read := func() map[string]any {
		t.Helper()

		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}

		return msg
	}

	if msg := read(); msg["type"] != "player_view" || msg["player_id"] != host.id {
		t.Fatalf("first frame = %v", msg)
	}

	ts.join(t, gameID, "Bob")

	msg := read()
	if msg["type"] != "game_state" {
		t.Fatalf("frame after join = %v", msg)
	}
	if players, _ := msg["players"].([]any); len(players) != 2 {
		t.Fatalf("players after join = %v", msg["players"])
	}
	if _, leaked := msg["common_word"]; leaked {
		t.Fatal("public frame carries the word")
	}
}

type recordingSubscriber struct {
	mu       sync.Mutex
	payloads [][]byte
	closed   bool
}

func (r *recordingSubscriber) Deliver(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.payloads = append(r.payloads, payload)

	return nil
}

func (r *recordingSubscriber) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
}

func TestSubscribeSeesMutationBeforeIt(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")
	s, err := ts.gs.registry.Lookup(gameID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	// A snapshot taken by the handler's early player check, then a join
	// and its broadcast land before the subscription exists.
	early, err := s.View(host.id)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	ts.join(t, gameID, "Bob")

	sub := &recordingSubscriber{}
	ts.gs.subscribe(s, host.id, sub)

	sub.mu.Lock()
	defer sub.mu.Unlock()

	if len(sub.payloads) != 1 || sub.closed {
		t.Fatalf("got %d frames (closed=%v), want the current view", len(sub.payloads), sub.closed)
	}

	var v dragonseeker.PlayerView
	if err := json.Unmarshal(sub.payloads[0], &v); err != nil {
		t.Fatalf("decode: %v", err)
	}

	current := s.PublicState().Version
	if v.State.Version != current || v.State.Version <= early.State.Version {
		t.Fatalf("first frame at version %d, game at %d (snapshot was %d)", v.State.Version, current, early.State.Version)
	}
	if len(v.State.Players) != 2 {
		t.Fatalf("first frame shows %d players, want 2", len(v.State.Players))
	}
	if ts.gs.registry.Broadcaster().Count(gameID) != 1 {
		t.Fatal("subscriber not registered")
	}
}

func TestSubscribeUnknownPlayer(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")
	s, err := ts.gs.registry.Lookup(gameID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	sub := &recordingSubscriber{}
	ts.gs.subscribe(s, "ghost", sub)
	if !sub.closed || ts.gs.registry.Broadcaster().Count(gameID) != 0 {
		t.Fatalf("unknown player left subscribed: closed=%v", sub.closed)
	}

	sub = &recordingSubscriber{}
	ts.gs.subscribe(s, host.id, sub)
	if sub.closed || len(sub.payloads) != 1 {
		t.Fatalf("known player: closed=%v frames=%d", sub.closed, len(sub.payloads))
	}
}

func TestWebsocketRequiresToken(t *testing.T) {
	ts := newTestServer(t)

	gameID, host := ts.create(t, "Alice")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/game/" + gameID + "/ws?player_id=" + host.id

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if !errors.Is(err, websocket.ErrBadHandshake) {
		t.Fatalf("dial without token: err = %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: status %d", resp.StatusCode)
	}
}

func TestCreateSetsCookie(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Client().Post(ts.URL+"/api/games", "application/json", strings.NewReader(`{"name":"Alice"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var jr joinResponse
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, c := range resp.Cookies() {
		if c.Name == tokenCookieName(jr.PlayerID) {
			if c.Value != jr.Token || !c.HttpOnly {
				t.Fatalf("cookie = %+v", c)
			}

			return
		}
	}

	t.Fatal("no token cookie set")
}

func TestPagesAndHealth(t *testing.T) {
	ts := newTestServer(t)
	gameID, _ := ts.create(t, "Alice")

	tests := []struct {
		path        string
		want        int
		contentType string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/game/" + gameID, http.StatusOK, "text/html"},
		{"/game/" + gameID + "/qr", http.StatusOK, "image/png"},
		{"/game/NOSUCHGM/qr", http.StatusNotFound, ""},
		{"/assets/app.js", http.StatusOK, "text/javascript"},
		{"/assets/app.css", http.StatusOK, "text/css"},
		{"/assets/missing.js", http.StatusNotFound, ""},
		{"/favicons/favicon.svg", http.StatusOK, "image/svg+xml"},
		{"/healthz", http.StatusOK, "text/plain"},
		{"/health", http.StatusOK, "application/json"},
		{"/version", http.StatusOK, "text/plain"},
		{"/robots.txt", http.StatusOK, "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := ts.Client().Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Fatalf("status %d, want %d", resp.StatusCode, tt.want)
			}
			if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, tt.contentType) {
				t.Fatalf("content type %q, want %q", ct, tt.contentType)
			}
		})
	}

	var health struct {
		Status string `json:"status"`
		dragonseeker.Stats
	}
	if code := ts.call(t, "GET", "/health", nil, nil, &health); code != http.StatusOK {
		t.Fatalf("health: status %d", code)
	}
	if health.Status != "healthy" || health.ActiveSessions != 1 || health.TotalPlayers != 1 {
		t.Fatalf("health = %+v", health)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{dragonseeker.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: detail", dragonseeker.ErrNotHost), http.StatusForbidden},
		{dragonseeker.ErrGameAlreadyStarted, http.StatusConflict},
		{dragonseeker.ErrInvalidGuess, http.StatusBadRequest},
		{dragonseeker.ErrNotEnoughPlayers, http.StatusBadRequest},
		{errUnauthorized, http.StatusUnauthorized},
		{errTokenMismatch, http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got, _ := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			finishedTimeout: 10 * time.Minute,
			port:            8080,
			sessionTimeout:  time.Hour,
			tokenTTL:        time.Hour,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"port zero", func(c *Config) { c.port = 0 }, false},
		{"port too high", func(c *Config) { c.port = 70000 }, false},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, false},
		{"zero session timeout", func(c *Config) { c.sessionTimeout = 0 }, false},
		{"finished outlives idle", func(c *Config) { c.finishedTimeout = 2 * time.Hour }, false},
		{"zero token ttl", func(c *Config) { c.tokenTTL = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)

			if err := c.validate(); (err == nil) != tt.ok {
				t.Fatalf("validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func intPtr(n int) *int {
	return &n
}
